package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/docsearch"
	"github.com/m4xw311/nima/mcpserver"
	"github.com/m4xw311/nima/tools"
)

const version = "1.0.0"

func main() {
	transport := flag.String("transport", "", "MCP transport: stdio or sse (default from config)")
	host := flag.String("host", "", "Host to bind in SSE mode")
	port := flag.Int("port", 0, "Port to bind in SSE mode")
	pdfsDir := flag.String("pdfs-dir", "", "Directory of PDFs to preload into the knowledge base")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}
	if *transport != "" {
		cfg.MCP.Transport = *transport
	}
	if *host != "" {
		cfg.MCP.Host = *host
	}
	if *port != 0 {
		cfg.MCP.Port = *port
	}
	if *pdfsDir != "" {
		cfg.PDFsDir = *pdfsDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout belongs to the protocol in stdio mode.
	store := docsearch.NewStore()
	if n, err := store.Init(cfg.PDFsDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load documents: %v\n", err)
	} else if n > 0 {
		fmt.Fprintf(os.Stderr, "Loaded %d documents from %s\n", n, cfg.PDFsDir)
	}

	registry := tools.NewPhysicsRegistry(cfg, tools.Deps{
		Store: store,
		Plots: []tools.PlotSink{tools.DirSink{Dir: cfg.PlotsDir}},
	})
	if err := mcpserver.Run(ctx, mcpserver.New(registry, version), cfg.MCP); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}
