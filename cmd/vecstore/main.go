// Package main is the vecstore CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/vecstore/internal/catalog"
	"github.com/hyperjump/vecstore/internal/cli"
	"github.com/hyperjump/vecstore/internal/config"
	"github.com/hyperjump/vecstore/internal/embedding"
	"github.com/hyperjump/vecstore/internal/inbox"
	"github.com/hyperjump/vecstore/internal/models"
	"github.com/hyperjump/vecstore/internal/server"
	"github.com/hyperjump/vecstore/internal/storage"
	"github.com/hyperjump/vecstore/internal/watcher"
	"github.com/hyperjump/vecstore/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath    = "/usr/local/etc/vecstore/config.yaml"
	defaultClientTimeout = 5 * time.Minute
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory; if neither exists, built-in defaults are used
// with relative paths under the current directory.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path != defaultConfigPath {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	for _, candidate := range []string{filepath.Join(cwd, "config.yaml"), defaultConfigPath} {
		if _, statErr := os.Stat(candidate); statErr == nil {
			cfg, loadErr := config.Load(candidate)
			if loadErr != nil {
				return nil, "", loadErr
			}
			return cfg, candidate, nil
		}
	}
	return config.Default(cwd), "", nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("vecstore version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	srv := server.NewServer(&cfg.Server, cfg.Embedding.ModelName, cfg.Embedding.Dimensions, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, emb, cat, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize catalog", zap.Error(err))
	}
	defer store.Close()
	defer emb.Close()
	srv.SetCatalog(cat)
	logger.Info("catalog ready", zap.Int("count", cat.Len()))

	var inboxWatcher *watcher.Watcher
	if cfg.Inbox.Directory != "" {
		ingester := inbox.New(cat, logger)
		inboxWatcher = watcher.NewWatcher(cfg.Inbox.Directory, cfg.Inbox.Extensions, ingester.HandleFile, watcher.WithLogger(logger))
		if err := inboxWatcher.Start(ctx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		logger.Info("inbox enabled", zap.String("dir", cfg.Inbox.Directory))
	}

	<-ctx.Done()
	logger.Info("Shutting down...")
	if inboxWatcher != nil {
		inboxWatcher.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// openCatalog wires storage, embedder and catalog from cfg. On error everything opened
// so far is closed.
func openCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, embedding.Embedder, *catalog.Catalog, error) {
	store, err := storage.Open(storage.Options{
		Backend:     cfg.Storage.Backend,
		Path:        cfg.Storage.Path,
		Compression: cfg.Storage.Compression,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open storage: %w", err)
	}
	emb, err := embedding.NewFromConfig(&cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("create embedder: %w", err)
	}
	cat, err := catalog.New(ctx, catalog.Options{
		Dimensions:  cfg.Embedding.Dimensions,
		ModelName:   cfg.Embedding.ModelName,
		DefaultTopK: cfg.Query.DefaultTopK,
	}, emb, store, logger)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, nil, nil, err
	}
	return store, emb, cat, nil
}

func runIndex() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for the default server URL)")
	serverURL := fs.String("server", "", "server URL (default: from config)")
	batchSize := fs.Int("batch-size", 0, "documents per request (0 = whole file in one request)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Println("Usage: vecstore index [flags] <file.json>")
		os.Exit(1)
	}
	docs, err := inbox.ReadBatchFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read documents: %v\n", err)
		os.Exit(1)
	}

	client := cli.NewClient(resolveServerURL(*serverURL, *configPath), defaultClientTimeout)
	ctx := context.Background()
	for _, batch := range splitBatches(docs, *batchSize) {
		resp, err := client.Index(ctx, batch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Index failed: %v\n", err)
			os.Exit(1)
		}
		cli.WriteIndexResult(os.Stdout, resp)
	}
}

func runQuery() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for the default server URL)")
	serverURL := fs.String("server", "", "server URL (default: from config)")
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	text := buildQueryText(fs.Args())
	if text == "" {
		fmt.Println("Usage: vecstore query [flags] <text>")
		os.Exit(1)
	}
	format, err := parseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	client := cli.NewClient(resolveServerURL(*serverURL, *configPath), defaultClientTimeout)
	resp, err := client.Query(context.Background(), text, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteQueryResults(os.Stdout, text, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (default: from config)")
	offline := fs.Bool("offline", false, "read persisted state directly instead of asking the server")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var st *models.StatusResponse
	if *offline {
		st, err = offlineStatus(*configPath)
	} else {
		client := cli.NewClient(resolveServerURL(*serverURL, *configPath), 10*time.Second)
		st, err = client.Status(context.Background())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// offlineStatus loads the persisted catalog without starting a server. Only use it while
// no server is writing to the same storage.
func offlineStatus(configPath string) (*models.StatusResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Options{
		Backend:     cfg.Storage.Backend,
		Path:        cfg.Storage.Path,
		Compression: cfg.Storage.Compression,
	})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	st := &models.StatusResponse{
		OK:        true,
		ModelName: cfg.Embedding.ModelName,
		Dimension: cfg.Embedding.Dimensions,
		Storage:   store.Location(),
	}
	snap, err := store.Load(context.Background())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		st.IndexReady = true
	case err != nil:
		return nil, err
	default:
		st.IndexReady = true
		st.IndexedDocuments = snap.Count()
		st.VectorCount = snap.Count()
		st.Dimension = snap.Dimensions
	}
	if n, err := store.DiskUsage(); err == nil {
		st.DiskUsageBytes = &n
	}
	return st, nil
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", "config.yaml", "config file to create")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if _, err := os.Stat(*path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists (use -force to overwrite)\n", *path)
		os.Exit(1)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(*path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *path)
}

// resolveServerURL returns explicit when set, else the address from the config at
// configPath, else the default local address.
func resolveServerURL(explicit, configPath string) string {
	if explicit != "" {
		return explicit
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
	}
	return serverURLFor(&cfg.Server)
}

func serverURLFor(cfg *config.ServerConfig) string {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Port)
}

// splitBatches cuts docs into chunks of size n. n <= 0 keeps one batch. An empty input
// still yields one (empty) batch so the server reports the no-op.
func splitBatches(docs []models.DocumentInput, n int) [][]models.DocumentInput {
	if n <= 0 || len(docs) <= n {
		return [][]models.DocumentInput{docs}
	}
	var out [][]models.DocumentInput
	for start := 0; start < len(docs); start += n {
		out = append(out, docs[start:min(start+n, len(docs))])
	}
	return out
}

// buildQueryText joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front, since flag.Parse stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseFormat(s string) (cli.OutputFormat, error) {
	switch s {
	case "text":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func printUsage() {
	fmt.Println(`vecstore - Exact vector similarity search over your documents

Usage:
  vecstore server [flags]              Start the HTTP server
  vecstore index [flags] <file.json>   Index a batch of documents through the server
  vecstore query [flags] <text>        Query the server for similar documents
  vecstore status [flags]              Show index status
  vecstore init [flags]                Write a config file with default settings
  vecstore version                     Show version
  vecstore help                        Show this help

Server Flags:
  --config string    Config file path (default: ./config.yaml, then /usr/local/etc/vecstore/config.yaml)
  --debug            Enable debug logging

Index Flags:
  --server string    Server URL (default: from config, http://localhost:8000)
  --batch-size int   Documents per request (default: 0, whole file at once)

Query Flags:
  --server string    Server URL
  --top-k int        Number of results (default: server default, 5)
  --output string    Output format: text or json (default: text)

Status Flags:
  --server string    Server URL
  --offline          Read persisted state directly (server must not be running)
  --output string    Output format: text or json (default: text)

The index file is a JSON array of documents, or an object {"documents": [...]}.
Each document needs "content"; "id" and any other keys are optional and kept.

Examples:
  vecstore server
  vecstore index data.json
  vecstore query "what color is the sky" --top-k 3
  vecstore status --output json`)
}
