// Package docsearch keeps the text of loaded PDF documents in memory and
// answers keyword queries over it.
package docsearch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ledongthuc/pdf"
	"github.com/m4xw311/nima/errors"
)

// Document is one loaded file.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"-"`
	Path    string `json:"path"`
	Pages   int    `json:"pages"`
}

const (
	// DefaultMaxChars is the query budget when the caller gives none.
	DefaultMaxChars = 8000
	maxSections     = 10
	contextBefore   = 2
	contextAfter    = 2
)

// Store is a document store safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs []Document

	extract func(path string) (string, int, error)
	log     io.Writer
}

func NewStore() *Store {
	return &Store{extract: extractPDF, log: os.Stderr}
}

// Init loads every *.pdf file in dir that is not loaded yet and returns how
// many were added. A missing directory loads nothing. Files that cannot be
// read are reported and skipped.
func (s *Store) Init(dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "could not stat %s", dir)
	}
	if !info.IsDir() {
		return 0, errors.New("%s is not a directory", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "*.pdf")
	if err != nil {
		return 0, errors.Wrapf(err, "could not list PDFs in %s", dir)
	}
	sort.Strings(matches)

	loaded := 0
	for _, name := range matches {
		if s.has(name) {
			continue
		}
		path := filepath.Join(dir, name)
		content, pages, err := s.extract(path)
		if err != nil {
			fmt.Fprintf(s.log, "Error loading %s: %v\n", path, err)
			continue
		}
		if s.Add(Document{Name: name, Content: content, Path: path, Pages: pages}) {
			loaded++
		}
	}
	return loaded, nil
}

// Add stores doc unless a document with the same name is already loaded.
func (s *Store) Add(doc Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.Name == doc.Name {
			return false
		}
	}
	s.docs = append(s.docs, doc)
	return true
}

// Clear drops every loaded document.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Documents returns a copy of the loaded documents in load order.
func (s *Store) Documents() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// AllContent concatenates every document under a "=== name (n pages) ===" header.
func (s *Store) AllContent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parts := make([]string, 0, len(s.docs))
	for _, d := range s.docs {
		parts = append(parts, fmt.Sprintf("=== %s (%d pages) ===\n%s", d.Name, d.Pages, d.Content))
	}
	return strings.Join(parts, "\n\n")
}

type section struct {
	source    string
	content   string
	relevance int
}

// Query returns the lines mentioning any word of query, each with two lines
// of context on both sides, most relevant first and cut to maxChars.
func (s *Store) Query(query string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.docs) == 0 {
		return "No documents loaded in knowledge base. Please load PDF documents first."
	}

	words := uniqueWords(query)
	var sections []section
	for _, doc := range s.docs {
		lines := strings.Split(doc.Content, "\n")
		for i, line := range lines {
			lower := strings.ToLower(line)
			relevance := 0
			for _, w := range words {
				if strings.Contains(lower, w) {
					relevance++
				}
			}
			if relevance == 0 {
				continue
			}
			start := max(0, i-contextBefore)
			end := min(len(lines), i+contextAfter+1)
			sections = append(sections, section{
				source:    doc.Name,
				content:   strings.Join(lines[start:end], "\n"),
				relevance: relevance,
			})
		}
	}

	if len(sections) == 0 {
		names := make([]string, 0, len(s.docs))
		for _, d := range s.docs {
			names = append(names, fmt.Sprintf("%s (%d pages)", d.Name, d.Pages))
		}
		return fmt.Sprintf("No specific matches found for '%s'. Available documents: %s", query, strings.Join(names, ", "))
	}

	sort.SliceStable(sections, func(i, j int) bool { return sections[i].relevance > sections[j].relevance })

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant sections:\n", len(sections))
	total := 0
	for _, sec := range sections[:min(len(sections), maxSections)] {
		text := fmt.Sprintf("\n[From %s]\n%s\n", sec.source, sec.content)
		n := utf8.RuneCountInString(text)
		if total+n > maxChars {
			break
		}
		b.WriteString(text)
		total += n
	}
	return b.String()
}

func (s *Store) has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if d.Name == name {
			return true
		}
	}
	return false
}

func uniqueWords(query string) []string {
	seen := map[string]bool{}
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	return words
}

// extractPDF returns the plain text of every page, one page per line block.
func extractPDF(path string) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var b strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", 0, errors.Wrapf(err, "page %d", i)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), pages, nil
}
