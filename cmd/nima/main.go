package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/m4xw311/nima/agent"
	"github.com/m4xw311/nima/agent/acp"
	"github.com/m4xw311/nima/agent/terminal"
	"github.com/m4xw311/nima/agent/web"
	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/docsearch"
	"github.com/m4xw311/nima/errors"
	"github.com/m4xw311/nima/experiments"
	"github.com/m4xw311/nima/llm"
	"github.com/m4xw311/nima/session"
	"github.com/m4xw311/nima/tools"
	"github.com/m4xw311/nima/tools/mcp"
	"github.com/muesli/termenv"
)

// options are the command line flags. Flags left unset keep the value from
// the configuration files and environment.
type options struct {
	query       string
	apiKey      string
	model       string
	llm         string
	pdfsDir     string
	maxSteps    int
	temperature float64
	verbose     bool
	webAddr     string
	sessionName string
	resume      string
	trace       bool
	acp         bool

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{set: map[string]bool{}}
	fs := flag.NewFlagSet("nima", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.query, "q", "", "Run a single query and exit")
	fs.StringVar(&opts.apiKey, "api-key", "", "Model API key (or set GOOGLE_API_KEY)")
	fs.StringVar(&opts.model, "model", "", "Model to use (default gemini-2.5-flash)")
	fs.StringVar(&opts.llm, "llm", "", "Model provider: gemini, openai, anthropic, bedrock or mock")
	fs.StringVar(&opts.pdfsDir, "pdfs-dir", "", "Directory containing PDF documents (default ./pdfs)")
	fs.IntVar(&opts.maxSteps, "max-steps", 0, "Maximum agent steps (default 10)")
	fs.Float64Var(&opts.temperature, "temperature", 0, "Model temperature (default 0.3)")
	fs.BoolVar(&opts.verbose, "v", false, "Show the reasoning steps")
	fs.StringVar(&opts.webAddr, "web", "", "Serve the web chat on this address (an empty value uses web.addr from the config)")
	fs.StringVar(&opts.sessionName, "s", "", "Session name to create or use")
	fs.StringVar(&opts.resume, "r", "", "Resume a session by name")
	fs.BoolVar(&opts.trace, "trace", false, "Write a trace of model retries and ACP traffic to nima.trace")
	fs.BoolVar(&opts.acp, "acp", false, "Serve the Agent Client Protocol on stdio")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	if opts.set["web"] && opts.acp {
		return nil, errors.New("-web and -acp cannot be combined")
	}
	return opts, nil
}

// apply copies the flags that were given onto cfg.
func (o *options) apply(cfg *config.Config) {
	if o.set["api-key"] {
		cfg.APIKey = o.apiKey
	}
	if o.set["model"] {
		cfg.Model = o.model
	}
	if o.set["llm"] {
		cfg.LLMClient = o.llm
	}
	if o.set["pdfs-dir"] {
		cfg.PDFsDir = o.pdfsDir
	}
	if o.set["max-steps"] {
		cfg.MaxSteps = o.maxSteps
	}
	if o.set["temperature"] {
		cfg.Generation.Temperature = float32(o.temperature)
	}
	if o.set["v"] {
		cfg.Verbose = o.verbose
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}
	opts.apply(cfg)

	if (cfg.LLMClient == "" || cfg.LLMClient == "gemini") && cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: Google API key not provided.")
		fmt.Fprintln(os.Stderr, "Set GOOGLE_API_KEY environment variable or use -api-key")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trace, closeTrace := openTrace(opts.trace)
	defer closeTrace()

	client, err := llm.NewClient(ctx, cfg.LLMClient, cfg.Model, cfg.APIKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s client: %+v\n", cfg.LLMClient, err)
		os.Exit(1)
	}
	model := llm.NewModel(client, generationConfig(cfg), llm.RetryPolicy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
	}, llm.WithLogf(func(format string, a ...any) {
		fmt.Fprintf(os.Stderr, format, a...)
		trace(strings.TrimSuffix(fmt.Sprintf(format, a...), "\n"))
	}))

	store := docsearch.NewStore()
	if n, err := store.Init(cfg.PDFsDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load documents: %v\n", err)
	} else if cfg.Verbose && n > 0 {
		fmt.Fprintf(os.Stderr, "Loaded %d documents from %s\n", n, cfg.PDFsDir)
	}

	var tracker *experiments.Tracker
	var sinks []tools.PlotSink
	if cfg.TrackExperiments {
		tracker, err = experiments.NewTracker(cfg.ExperimentsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: experiment tracking disabled: %v\n", err)
		} else {
			sinks = append(sinks, tracker)
		}
	}
	sinks = append(sinks, tools.DirSink{Dir: cfg.PlotsDir})

	registry := tools.NewPhysicsRegistry(cfg, tools.Deps{Store: store, Plots: sinks})
	for _, c := range mcp.RegisterServers(ctx, registry, cfg.AdditionalMCPServers) {
		defer c.Stop()
	}

	label := llm.Label(cfg.LLMClient, cfg.Model)
	newAgent := func(sess *session.Session) (*agent.Agent, error) {
		a, err := agent.New(cfg, sess, model, label, registry, nil)
		if err != nil {
			return nil, err
		}
		a.Tracker = tracker
		a.Color = true
		return a, nil
	}

	switch {
	case opts.set["web"]:
		addr := opts.webAddr
		if addr == "" {
			addr = cfg.Web.Addr
		}
		if err := web.New(newAgent, label).ListenAndServe(ctx, addr); err != nil {
			fmt.Fprintf(os.Stderr, "Web server stopped with an error: %+v\n", err)
			os.Exit(1)
		}
		return
	case opts.acp:
		in := bufio.NewReader(os.Stdin)
		out := bufio.NewWriter(os.Stdout)
		if err := acp.Run(ctx, newAgent, cfg.SessionsDir, in, out, trace); err != nil {
			fmt.Fprintf(os.Stderr, "ACP mode failed: %+v\n", err)
			os.Exit(1)
		}
		return
	}

	sess, err := openSession(cfg.SessionsDir, opts, opts.query == "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
	nimaAgent, err := newAgent(sess)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing agent: %+v\n", err)
		os.Exit(1)
	}

	term := terminal.New(nimaAgent, os.Stdin, os.Stdout, cfg.Verbose)
	term.Color = termenv.NewOutput(os.Stdout).Profile != termenv.Ascii
	if opts.query != "" {
		if err := term.Ask(ctx, opts.query); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := term.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

func generationConfig(cfg *config.Config) llm.GenerationConfig {
	return llm.GenerationConfig{
		Temperature:     cfg.Generation.Temperature,
		TopP:            cfg.Generation.TopP,
		TopK:            cfg.Generation.TopK,
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
		SafetySettings:  cfg.Generation.SafetySettings,
	}
}

// openSession resumes the -r session or starts the -s one, named after the
// working directory and time when neither is given.
func openSession(dir string, opts *options, announce bool) (*session.Session, error) {
	if opts.resume != "" {
		sess, err := session.Load(dir, opts.resume)
		if err != nil {
			return nil, errors.Wrapf(err, "Error resuming session '%s'", opts.resume)
		}
		if announce {
			fmt.Printf("Resuming session: %s\n", opts.resume)
		}
		return sess, nil
	}

	name := opts.sessionName
	if name == "" {
		name = defaultSessionName()
	}
	sess, err := session.Load(dir, name)
	if err == nil {
		if announce {
			fmt.Printf("Continuing session: %s\n", name)
		}
		return sess, nil
	}
	sess, err = session.New(dir, name)
	if err != nil {
		return nil, errors.Wrapf(err, "Error creating session '%s'", name)
	}
	if announce {
		fmt.Printf("Starting new session: %s\n", name)
	}
	return sess, nil
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "nima"
	}
	return fmt.Sprintf("%s_%s", filepath.Base(wd), time.Now().Format("2006-01-02_15-04-05"))
}

// openTrace returns a function appending timestamped lines to nima.trace
// when enabled, and a no-op otherwise.
func openTrace(enabled bool) (func(string), func()) {
	if !enabled {
		return func(string) {}, func() {}
	}
	traceFile, err := os.OpenFile("nima.trace", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: tracing disabled: %v\n", err)
		return func(string) {}, func() {}
	}
	return func(msg string) {
		fmt.Fprintf(traceFile, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
	}, func() { traceFile.Close() }
}
