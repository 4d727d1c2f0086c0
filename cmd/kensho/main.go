// Package main is the kensho CLI entry point.
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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/app"
	"github.com/hyperjump/kensho/internal/config"
	"github.com/hyperjump/kensho/internal/server"
	"github.com/hyperjump/kensho/internal/watcher"
	"github.com/hyperjump/kensho/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kensho/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kensho server" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config and creates the logger, exiting on failure.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	// .env supplies API keys in development; a missing file is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "verify":
		runVerify()
	case "facts":
		runFacts()
	case "embed":
		runEmbed()
	case "import":
		runImport()
	case "history":
		runHistory()
	case "version", "--version", "-v":
		fmt.Printf("kensho version %s\n", version)
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
	debug := fs.Bool("debug", false, "enable debug logging (pipeline stages, corpus reloads, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("corpus", cfg.Corpus.Path),
		zap.String("llm", cfg.LLM.Provider+"/"+cfg.LLM.Model),
	)

	components, err := app.Initialize(cfg, logger, app.Options{Pipeline: true, History: true, Metrics: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A broken corpus at startup leaves the server up and degraded; the watcher or
	// POST /api/v1/reload can bring it in once the file is fixed.
	if _, err := components.Reload(ctx); err != nil {
		logger.Error("Initial corpus load failed", zap.String("path", cfg.Corpus.Path), zap.Error(err))
	}

	if cfg.Watch.Enabled {
		watchSvc := watcher.NewWatcher(cfg.Corpus.Path, func(path string) {
			changed, err := components.Reload(ctx)
			if err != nil {
				logger.Warn("Corpus reload failed, keeping previous facts", zap.String("path", path), zap.Error(err))
				return
			}
			if changed {
				logger.Info("Corpus reloaded", zap.String("path", path), zap.Int("facts", components.Index.Size()))
			}
		}, watcher.WithLogger(logger), watcher.WithDebounce(cfg.Watch.Debounce))
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(components, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops at
// the first non-flag argument, so `kensho verify "claim" -output json` would
// otherwise leave -output unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' && a != "-" {
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

// joinArgs joins positional args with spaces so multi-word claims work the same
// with or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func printUsage() {
	fmt.Println(`kensho - Fact verification against a curated corpus

Usage:
  kensho server [flags]                     Start the HTTP server
  kensho verify [flags] <claim>             Verify a claim ("-" reads it from stdin)
  kensho facts list [flags]                 List corpus facts
  kensho facts show <id>                    Show one fact
  kensho facts search [flags] <query>       Keyword + semantic lookup over fact text
  kensho facts stats                        Corpus statistics
  kensho embed [flags]                      Validate the corpus and backfill embeddings
  kensho import [flags] <file>              Append draft facts from xlsx/pdf/docx/odt/rtf/txt
  kensho history [flags] [id]               List stored verifications, or show one
  kensho version                            Show version
  kensho help                               Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kensho/config.yaml,
                     or ./config.yaml when present)
  --debug            Enable debug logging
  --output string    Output format: text, compact or json (default: text)

Verify / History Flags:
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "")
                     to run in-process when the server is not running.

Facts Flags:
  --category string  Only facts in this category (list, search)
  --limit int        Maximum number of facts (list, search)
  --fuzzy            Typo-tolerant keyword search (search)
  --mode string      keyword, semantic or hybrid (search, default: hybrid)
  --min-score float  Minimum fused score (search, default: 0.1)

Import Flags:
  --category, --source, --date   Values for fields the file does not carry
  --sheet string     Spreadsheet sheet (default: first sheet)
  --dry-run          Print the draft facts without writing the corpus
  --no-embed         Skip computing embeddings for the new facts

History Flags:
  --verdict string   Only true, false or unverifiable
  --limit int        Number of records (default: 20)
  --offset int       Records to skip

Environment:
  OPENAI_API_KEY, GEMINI_API_KEY, LLM_PROVIDER, MODEL_NAME,
  KENSHO_SIMILARITY_THRESHOLD, KENSHO_TOP_K, KENSHO_CORPUS_PATH
  A .env file in the working directory is loaded first.

Examples:
  kensho server
  kensho verify "Maize production rose by 12 percent in 2023"
  kensho verify --server "" --output json "Health spending reached 9 percent of the budget"
  kensho facts list --category health
  kensho facts search --fuzzy "helth centres"
  kensho import --category agriculture --source https://example.gov/r/1 --date 2024-01-15 release.pdf
  kensho history --verdict false`)
}
