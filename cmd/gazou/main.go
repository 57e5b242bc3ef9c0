// Package main is the Gazou CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/catalog"
	"github.com/hyperjump/gazou/internal/config"
	"github.com/hyperjump/gazou/internal/encoder"
	"github.com/hyperjump/gazou/internal/keyword"
	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/retrieval"
	"github.com/hyperjump/gazou/internal/server"
	"github.com/hyperjump/gazou/internal/watcher"
	"github.com/hyperjump/gazou/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/gazou/config.yaml"

const apiKeyEnv = "GAZOU_API_KEY"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory wins, so running from the project dir picks up the
// project's config. Returns the config and the path actually loaded.
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

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "index":
		runIndex()
	case "search":
		runSearch()
	case "search-image":
		runSearchImage()
	case "random":
		runRandom()
	case "stats":
		runStats()
	case "server":
		runServer()
	case "version", "--version", "-v":
		fmt.Printf("gazou version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`gazou - image retrieval by text and image similarity

Usage:
  gazou index -dir <path> [-save <prefix>] [flags]    index an image directory
  gazou search -query <text> [flags]                  search a saved system by text
  gazou search-image -image <path> [flags]            search by image similarity
  gazou random [-count n] [flags]                     sample random indexed images
  gazou stats [flags]                                 show system statistics
  gazou server [flags]                                run the HTTP API server
  gazou version                                       print version

Common flags:
  -config <path>   config file (default ` + defaultConfigPath + `, ./config.yaml wins)
  -encoder <type>  encoder strategy: clip, siglip, remote, mock
  -index <type>    vector index: flat, ivf, hnsw

The remote encoder reads its API key from ` + apiKeyEnv + `.`)
}

func fatal(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}

func newLogger(cfg *config.Config, debug bool) *zap.Logger {
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fatal("Failed to create logger: %v", err)
	}
	return logger
}

// encoderConfig builds the encoder configuration from the file config plus
// CLI overrides; the API key always comes from the environment.
func encoderConfig(cfg *config.Config, encoderType string, logger *zap.Logger) encoder.Config {
	ec := encoder.Config{
		Type:       cfg.Encoder.Type,
		ModelName:  cfg.Encoder.ModelName,
		ModelDir:   cfg.Encoder.ModelDir,
		BaseURL:    cfg.Encoder.BaseURL,
		APIKey:     os.Getenv(apiKeyEnv),
		Dimensions: cfg.Encoder.Dimensions,
		CacheSize:  cfg.Encoder.CacheSize,
		FailFast:   cfg.Encoder.FailFast,
		Logger:     logger,
	}
	if encoderType != "" {
		ec.Type = encoderType
	}
	return ec
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dir := fs.String("dir", "", "image directory to index (required)")
	save := fs.String("save", "", "artifact prefix to save the system to (default from config)")
	encoderType := fs.String("encoder", "", "encoder strategy override")
	indexType := fs.String("index", "", "vector index type override")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if *dir == "" {
		fatal("index: -dir is required")
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	idxType := cfg.Index.Type
	if *indexType != "" {
		idxType = *indexType
	}
	prefix := cfg.Storage.SystemPrefix
	if *save != "" {
		prefix = *save
	}

	var bar *progressbar.ProgressBar
	opts := []retrieval.Option{
		retrieval.WithLogger(logger),
		retrieval.WithImageBatchSize(cfg.Search.BatchSize),
		retrieval.WithRecursive(*recursive),
		retrieval.WithProgress(func(done, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "indexing")
			}
			_ = bar.Set(done)
		}),
	}
	if cat, err := catalog.NewSQLiteCatalog(cfg.Storage.DatabasePath); err == nil {
		defer cat.Close()
		opts = append(opts, retrieval.WithCatalog(cat))
	} else {
		logger.Warn("catalog disabled", zap.Error(err))
	}
	if kw, err := keyword.New(cfg.Storage.KeywordPath); err == nil {
		defer kw.Close()
		opts = append(opts, retrieval.WithKeywordIndex(kw))
	} else {
		logger.Warn("keyword index disabled", zap.Error(err))
	}

	system, err := retrieval.NewSystem(encoderConfig(cfg, *encoderType, logger), idxType, opts...)
	if err != nil {
		fatal("Failed to create system: %v", err)
	}
	defer system.Close()

	n, err := system.AddImagesFromDirectory(context.Background(), *dir)
	if err != nil {
		fatal("Indexing failed: %v", err)
	}
	if err := system.SaveSystem(prefix); err != nil {
		fatal("Failed to save system: %v", err)
	}
	fmt.Printf("Indexed %d images; system saved to %s\n", n, prefix)
}

func loadSystem(cfg *config.Config, logger *zap.Logger) *retrieval.System {
	system, err := retrieval.LoadSystem(cfg.Storage.SystemPrefix, os.Getenv(apiKeyEnv),
		retrieval.WithLogger(logger))
	if err != nil {
		fatal("Failed to load system from %s: %v (run 'gazou index' first)", cfg.Storage.SystemPrefix, err)
	}
	return system
}

func printResults(results []models.SearchResult) {
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for _, r := range results {
		fmt.Printf("%2d. %-60s %.4f", r.Rank, r.ImagePath, r.Score)
		if r.KeywordScore > 0 {
			fmt.Printf("  (keyword %.2f)", r.KeywordScore)
		}
		fmt.Println()
		if r.Metadata != nil && r.Metadata.Width > 0 {
			fmt.Printf("      %dx%d %s, %d bytes\n",
				r.Metadata.Width, r.Metadata.Height, r.Metadata.Format, r.Metadata.FileSize)
		}
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	query := fs.String("query", "", "text query (required)")
	topK := fs.Int("top-k", 0, "number of results (default from config)")
	withMetadata := fs.Bool("metadata", false, "include image metadata")
	hybrid := fs.Bool("hybrid", false, "blend filename keyword matches")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if *query == "" {
		fatal("search: -query is required")
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	system := loadSystem(cfg, logger)
	defer system.Close()

	k := *topK
	if k <= 0 {
		k = cfg.Search.DefaultTopK
	}
	results, err := system.Search(context.Background(), models.SearchRequest{
		Query:        *query,
		TopK:         k,
		WithMetadata: *withMetadata,
		Hybrid:       *hybrid,
	})
	if err != nil {
		fatal("Search failed: %v", err)
	}
	printResults(results)
}

func runSearchImage() {
	fs := flag.NewFlagSet("search-image", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	imagePath := fs.String("image", "", "query image path (required)")
	topK := fs.Int("top-k", 0, "number of results (default from config)")
	withMetadata := fs.Bool("metadata", false, "include image metadata")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if *imagePath == "" {
		fatal("search-image: -image is required")
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	system := loadSystem(cfg, logger)
	defer system.Close()

	k := *topK
	if k <= 0 {
		k = cfg.Search.DefaultTopK
	}
	results, err := system.SearchByImage(context.Background(), models.ImageSearchRequest{
		ImagePath:    *imagePath,
		TopK:         k,
		WithMetadata: *withMetadata,
	})
	if err != nil {
		fatal("Search failed: %v", err)
	}
	printResults(results)
}

func runRandom() {
	fs := flag.NewFlagSet("random", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	count := fs.Int("count", 5, "number of images to sample")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	system := loadSystem(cfg, logger)
	defer system.Close()

	recs, err := system.RandomImages(context.Background(), *count)
	if err != nil {
		fatal("Sampling failed: %v", err)
	}
	for _, r := range recs {
		fmt.Println(r.Path)
	}
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	system := loadSystem(cfg, logger)
	defer system.Close()

	stats := system.Stats(context.Background())
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		fatal("Failed to render stats: %v", err)
	}
	fmt.Println(string(out))
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedPath))

	opts := []retrieval.Option{
		retrieval.WithLogger(logger),
		retrieval.WithImageBatchSize(cfg.Search.BatchSize),
	}
	cat, err := catalog.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		fatal("Failed to open catalog: %v", err)
	}
	defer cat.Close()
	opts = append(opts, retrieval.WithCatalog(cat))

	kw, err := keyword.New(cfg.Storage.KeywordPath)
	if err != nil {
		fatal("Failed to open keyword index: %v", err)
	}
	defer kw.Close()
	opts = append(opts, retrieval.WithKeywordIndex(kw))

	// Resume from saved artifacts when present; otherwise start empty.
	var system *retrieval.System
	if _, statErr := os.Stat(cfg.Storage.SystemPrefix + "_config.json"); statErr == nil {
		system, err = retrieval.LoadSystem(cfg.Storage.SystemPrefix, os.Getenv(apiKeyEnv), opts...)
	} else {
		system, err = retrieval.NewSystem(encoderConfig(cfg, "", logger), cfg.Index.Type, opts...)
	}
	if err != nil {
		fatal("Failed to create system: %v", err)
	}
	defer system.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var w *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		onIndex := func(path string) {
			if _, err := system.AddImages(ctx, []string{path}); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		}
		w = watcher.New(cfg.Watch.Directories, cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(), onIndex, nil, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			fatal("Failed to start watcher: %v", err)
		}
		defer w.Stop()
	}

	var watch server.WatchService
	if w != nil {
		watch = w
	}
	srv := server.NewServer(system, cfg, logger, watch)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			fatal("Server error: %v", err)
		}
	case <-sig:
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
		if err := system.SaveSystem(cfg.Storage.SystemPrefix); err != nil {
			logger.Error("failed to save system on shutdown", zap.Error(err))
		}
	}
}
