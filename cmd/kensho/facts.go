package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/app"
	"github.com/hyperjump/kensho/internal/cli"
	"github.com/hyperjump/kensho/internal/config"
	"github.com/hyperjump/kensho/internal/corpus"
	"github.com/hyperjump/kensho/internal/search"
)

func runFacts() {
	if len(os.Args) < 3 {
		fail("Usage: kensho facts <list|show|search|stats> [flags]")
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("facts "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	category := fs.String("category", "", "only facts in this category")
	limit := fs.Int("limit", 0, "maximum number of facts (0 = all for list, 10 for search)")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	mode := fs.String("mode", "hybrid", "search mode: keyword, semantic, or hybrid")
	minScore := fs.Float64("min-score", 0.1, "minimum fused score for search results")
	_ = fs.Parse(argsReorder(os.Args[3:]))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	// list, show and stats read the file as it is; no embeddings are computed.
	corp, err := corpus.ReadFile(cfg.Corpus.Path)
	if err != nil {
		fail("Failed to read corpus: %v", err)
	}

	switch sub {
	case "list":
		facts := corp.Facts
		if *category != "" {
			facts = corp.ByCategory(*category)
		}
		if *limit > 0 && len(facts) > *limit {
			facts = facts[:*limit]
		}
		out := make([]cli.FactOutput, len(facts))
		for i, f := range facts {
			out[i] = cli.FactOutput{Fact: f}
		}
		err = cli.WriteFacts(os.Stdout, out, format)
	case "show":
		id := joinArgs(fs.Args())
		f, ok := corp.ByID(id)
		if !ok {
			fail("Fact %q not found", id)
		}
		err = cli.WriteFacts(os.Stdout, []cli.FactOutput{{Fact: f}}, format)
	case "search":
		query := joinArgs(fs.Args())
		if query == "" {
			fail("Usage: kensho facts search [flags] <query>")
		}
		q := search.Query{Text: query, Category: *category, Limit: *limit, Fuzzy: *fuzzy, MinScore: *minScore}
		switch *mode {
		case "keyword":
			q.KeywordWeight = 1
		case "semantic":
			q.SemanticWeight = 1
		case "hybrid":
		default:
			fail("Unknown search mode %q; use keyword, semantic, or hybrid", *mode)
		}
		err = searchFacts(cfg, logger, q, format)
	case "stats":
		stats := corp.Stats(cfg.Embedding.Dimensions)
		err = cli.WriteStats(os.Stdout, &stats, format)
	default:
		fail("Unknown facts command: %s (use list, show, search or stats)", sub)
	}
	if err != nil {
		fail("facts %s failed: %v", sub, err)
	}
}

// searchFacts loads the corpus into the indexes and runs a hybrid lookup. Missing embeddings are
// computed (and written back) on the way, as any load does.
func searchFacts(cfg *config.Config, logger *zap.Logger, q search.Query, format cli.OutputFormat) error {
	components, err := app.Initialize(cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer components.Close()
	ctx := context.Background()
	if _, err := components.Reload(ctx); err != nil {
		return err
	}
	results, err := components.Search.Search(ctx, q)
	if err != nil {
		return err
	}
	// Retry with typo tolerance when an exact search finds nothing.
	if len(results) == 0 && !q.Fuzzy && q.KeywordWeight > 0 {
		q.Fuzzy = true
		if results, err = components.Search.Search(ctx, q); err != nil {
			return err
		}
	}
	out := make([]cli.FactOutput, len(results))
	for i, r := range results {
		out[i] = cli.FactOutput{Fact: r.Fact, Score: r.Score}
	}
	return cli.WriteFacts(os.Stdout, out, format)
}

func runEmbed() {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()
	n, total, err := embedCorpus(cfg, logger)
	if err != nil {
		fail("Embedding failed: %v", err)
	}
	fmt.Printf("embedded %d of %d facts (%d dims) in %s\n", n, total, cfg.Embedding.Dimensions, cfg.Corpus.Path)
}

// embedCorpus loads and validates the corpus, computing and writing back every missing embedding.
func embedCorpus(cfg *config.Config, logger *zap.Logger) (embedded, total int, err error) {
	writeBack := true
	cfg.Corpus.CacheEmbeddings = &writeBack
	components, err := app.Initialize(cfg, logger, app.Options{})
	if err != nil {
		return 0, 0, err
	}
	defer components.Close()
	if _, err := components.Reload(context.Background()); err != nil {
		return 0, 0, err
	}
	c := components.Store.Current()
	return c.Embedded, c.Len(), nil
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	category := fs.String("category", "", "category for facts whose source has none")
	source := fs.String("source", "", "source URL for facts whose source has none")
	date := fs.String("date", "", "publication date (YYYY-MM-DD) for facts whose source has none")
	sheet := fs.String("sheet", "", "spreadsheet sheet (default: first sheet)")
	dryRun := fs.Bool("dry-run", false, "print the draft facts without writing the corpus")
	noEmbed := fs.Bool("no-embed", false, "skip computing embeddings for the new facts")
	outputFormat := fs.String("output", "text", "output format for --dry-run: text, compact, or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fail("Usage: kensho import [flags] <file>")
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()

	drafts, err := corpus.NewImporter(logger).ImportFile(fs.Arg(0), corpus.ImportOptions{
		Category:        *category,
		Source:          *source,
		PublicationDate: *date,
		Sheet:           *sheet,
	})
	if err != nil {
		fail("Import failed: %v", err)
	}
	if len(drafts) == 0 {
		fmt.Println("no facts found")
		return
	}
	if *dryRun {
		out := make([]cli.FactOutput, len(drafts))
		for i, f := range drafts {
			out[i] = cli.FactOutput{Fact: f}
		}
		if err := cli.WriteFacts(os.Stdout, out, format); err != nil {
			fail("Output failed: %v", err)
		}
		return
	}

	corp, err := corpus.ReadFile(cfg.Corpus.Path)
	if err != nil {
		fail("Failed to read corpus: %v", err)
	}
	ids, err := corp.Append(drafts, cfg.Corpus.Categories)
	if err != nil {
		fail("Import failed: %v", err)
	}
	fmt.Printf("added %d fact(s): %s\n", len(ids), strings.Join(ids, ", "))

	if !*noEmbed {
		n, _, err := embedCorpus(cfg, logger)
		if err != nil {
			fail("Facts were added but embedding failed: %v", err)
		}
		fmt.Printf("embedded %d fact(s)\n", n)
	}
}
