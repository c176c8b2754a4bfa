// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro"
	"github.com/poiesic/maestro/clients"
	ollamaclient "github.com/poiesic/maestro/clients/ollama"
	openaiclient "github.com/poiesic/maestro/clients/openai"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/embedders"
	ollamaembed "github.com/poiesic/maestro/embedders/ollama"
	openaiembed "github.com/poiesic/maestro/embedders/openai"
	"github.com/poiesic/maestro/pipeline"
	"github.com/poiesic/maestro/reindex"
	"github.com/poiesic/maestro/tracing"
	"github.com/poiesic/maestro/vectorstore"
	badgerstore "github.com/poiesic/maestro/vectorstore/badger"
	milvusstore "github.com/poiesic/maestro/vectorstore/milvus"
	qdrantstore "github.com/poiesic/maestro/vectorstore/qdrant"
)

// configurableFlags are the global flags a config file may provide values
// for. Explicit command-line flags win over the file.
var configurableFlags = []string{
	"log-level", "store", "db", "milvus-addr", "qdrant-host", "qdrant-port",
	"collection", "embedder", "embedding-model", "embedding-host",
	"client", "model", "client-host", "api-key",
}

var (
	tracingShutdown func(context.Context) error
	traceCollector  *tracing.Collector
	traceSpan       trace.Span
)

func main() {
	// Flags resolve env fallbacks at parse time, so the .env file has to be
	// in the environment before the app runs.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "maestro",
		Usage: "Ingest, search, and question document collections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file providing flag defaults",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Vector store backend (badger, milvus, qdrant)",
				Value: "badger",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the BadgerDB directory",
				Value:   "./maestro_db",
			},
			&cli.StringFlag{
				Name:  "milvus-addr",
				Usage: "Milvus gRPC address",
				Value: milvusstore.DefaultAddress,
			},
			&cli.StringFlag{
				Name:  "qdrant-host",
				Usage: "Qdrant host",
				Value: qdrantstore.DefaultHost,
			},
			&cli.IntFlag{
				Name:  "qdrant-port",
				Usage: "Qdrant gRPC port",
				Value: qdrantstore.DefaultPort,
			},
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Collection to operate on",
				Value: "documents",
			},
			&cli.StringFlag{
				Name:  "embedder",
				Usage: "Embedding provider (openai, ollama)",
				Value: "ollama",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name (provider default if empty)",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service base URL (provider default if empty)",
			},
			&cli.StringFlag{
				Name:  "client",
				Usage: "Chat model provider for ask (openai, ollama)",
				Value: "ollama",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Chat model name (provider default if empty)",
			},
			&cli.StringFlag{
				Name:  "client-host",
				Usage: "Chat service base URL (provider default if empty)",
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key for OpenAI providers",
				EnvVars: []string{"OPENAI_API_KEY", "MAESTRO_API_KEY"},
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "Print the command's span tree on stderr when it finishes",
			},
		},
		Before: setup,
		After: func(c *cli.Context) error {
			if traceSpan != nil {
				traceSpan.End()
				traceSpan = nil
			}
			if traceCollector != nil {
				traceCollector.Render(os.Stderr)
			}
			if tracingShutdown != nil {
				return tracingShutdown(c.Context)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Split, embed, and store documents",
				ArgsUsage: "<files...>",
				Action:    ingestCommand,
			},
			{
				Name:      "search",
				Usage:     "Find the chunks most similar to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Number of results to return",
						Value:   5,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the collection's content",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Number of chunks retrieved as context",
						Value:   5,
					},
				},
			},
			{
				Name:  "collections",
				Usage: "Manage collections",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List all collections",
						Action: collectionsListCommand,
					},
					{
						Name:      "create",
						Usage:     "Create a collection",
						ArgsUsage: "<name>",
						Action:    collectionsCreateCommand,
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "dim",
								Usage: "Vector dimensionality (asks the embedder if omitted)",
							},
						},
					},
					{
						Name:      "drop",
						Usage:     "Drop a collection and all of its chunks",
						ArgsUsage: "<name>",
						Action:    collectionsDropCommand,
					},
				},
			},
			{
				Name:   "dump",
				Usage:  "Print every chunk of the collection as JSON",
				Action: dumpCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every chunk of the collection",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of batches processed concurrently (0 = CPU count / 2)",
					},
				},
			},
		},
	}
}

func setup(c *cli.Context) error {
	if err := loadConfigFile(c); err != nil {
		return err
	}
	if err := setupLogger(c); err != nil {
		return err
	}
	return setupTracing(c)
}

// loadConfigFile fills unset global flags from the YAML config file.
func loadConfigFile(c *cli.Context) error {
	path := c.String("config")
	if path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	for _, name := range configurableFlags {
		if c.IsSet(name) || !v.IsSet(name) {
			continue
		}
		if err := c.Set(name, v.GetString(name)); err != nil {
			return fmt.Errorf("config key %q: %w", name, err)
		}
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// setupTracing starts span export when a collector endpoint is configured,
// and with --trace additionally records every span in memory for the tree
// printed after the command. Without either the global provider stays a
// no-op.
func setupTracing(c *cli.Context) error {
	traceCollector = nil
	if os.Getenv(tracing.EnvEndpoint) != "" {
		shutdown, err := tracing.Init(c.Context, tracing.Config{})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		tracingShutdown = shutdown
	}
	if c.Bool("trace") {
		traceCollector = tracing.NewCollector()
		tracing.Observe(traceCollector)

		// A root span parents everything the command does, so the tree has
		// one top line even on backends that emit no spans of their own.
		name := c.Args().First()
		if name == "" {
			name = "maestro"
		}
		c.Context, traceSpan = tracing.Start(c.Context, name)
	}
	return nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file to ingest is required")
	}

	docs := make([]pipeline.Document, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, pipeline.Document{
			Text:     string(text),
			Metadata: map[string]any{"source": path},
		})
	}

	stack, err := buildStack(c, false)
	if err != nil {
		return err
	}
	defer stack.Close()

	collection := c.String("collection")
	count, err := stack.Ingest(c.Context, collection, docs)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Printf("Ingested %d chunks from %d documents into %q\n", count, len(docs), collection)
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a query is required")
	}

	stack, err := buildStack(c, false)
	if err != nil {
		return err
	}
	defer stack.Close()

	query := strings.Join(c.Args().Slice(), " ")
	results, err := stack.Search(c.Context, c.String("collection"), query, c.Int("k"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: '%s' (%s)[%0.3f]\n", i, snippet(hit.Chunk.Text), hit.Chunk.ID, hit.Score)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("a question is required")
	}

	stack, err := buildStack(c, true)
	if err != nil {
		return err
	}
	defer stack.Close()

	question := strings.Join(c.Args().Slice(), " ")
	answer, err := stack.Ask(c.Context, c.String("collection"), question)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range answer.Sources {
			fmt.Printf("%d: '%s' [%0.3f]\n", i, snippet(src.Chunk.Text), src.Score)
		}
	}
	return nil
}

func collectionsListCommand(c *cli.Context) error {
	store, err := buildStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	names, err := store.ListCollections(c.Context)
	if err != nil {
		return fmt.Errorf("list collections failed: %w", err)
	}

	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func collectionsCreateCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("a collection name is required")
	}

	dim := c.Int("dim")
	if dim <= 0 {
		embedder, err := buildEmbedder(c)
		if err != nil {
			return err
		}
		dim = embedder.Dim()
	}
	if dim <= 0 {
		return fmt.Errorf("the embedder does not report its dimensionality; pass --dim")
	}

	store, err := buildStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.CreateCollection(c.Context, name, []core.VectorConfig{
		{Name: core.DefaultVectorField, Dim: dim},
	})
	if err != nil {
		return fmt.Errorf("create collection failed: %w", err)
	}

	fmt.Printf("Created collection %q (dim %d)\n", name, dim)
	return nil
}

func collectionsDropCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("a collection name is required")
	}

	store, err := buildStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DropCollection(c.Context, name); err != nil {
		return fmt.Errorf("drop collection failed: %w", err)
	}

	fmt.Printf("Dropped collection %q\n", name)
	return nil
}

func dumpCommand(c *cli.Context) error {
	store, err := buildStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	chunks, err := store.Dump(c.Context, c.String("collection"))
	if err != nil {
		return fmt.Errorf("dump failed: %w", err)
	}

	out, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chunks: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func reindexCommand(c *cli.Context) error {
	config := reindex.DefaultConfig()
	config.BatchSize = c.Int("batch-size")
	config.ReportInterval = c.Int("report-interval")
	config.MaxRetries = c.Int("max-retries")
	config.RetryDelay = c.Duration("retry-delay")
	if c.Int("pool-size") > 0 {
		config.PoolSize = c.Int("pool-size")
	}

	// Validate config
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	store, err := buildStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := buildEmbedder(c)
	if err != nil {
		return err
	}

	collection := c.String("collection")
	fmt.Fprintf(os.Stderr, "Collection: %s\n", collection)
	fmt.Fprintf(os.Stderr, "Embedding provider: %s\n", c.String("embedder"))
	fmt.Fprintln(os.Stderr)

	err = reindex.Run(c.Context, store, collection, embedder,
		reindex.WithConfig(config),
		reindex.WithProgress(os.Stderr),
	)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

// buildStack wires a store and an embedder, plus a model client when the
// command needs one, into a Stack. The caller owns Close.
func buildStack(c *cli.Context, withClient bool) (*maestro.Stack, error) {
	store, err := buildStore(c)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(c)
	if err != nil {
		store.Close()
		return nil, err
	}

	opts := []maestro.Option{
		maestro.WithStore(store),
		maestro.WithEmbedder(embedder),
	}
	if withClient {
		client, err := buildClient(c)
		if err != nil {
			store.Close()
			return nil, err
		}
		opts = append(opts, maestro.WithClient(client))
	}
	if k := c.Int("k"); k > 0 {
		opts = append(opts, maestro.WithTopK(k))
	}

	stack, err := maestro.New(opts...)
	if err != nil {
		store.Close()
		return nil, err
	}
	return stack, nil
}

func buildStore(c *cli.Context) (vectorstore.Store, error) {
	switch backend := c.String("store"); backend {
	case "badger":
		return badgerstore.New(badgerstore.WithPath(c.String("db")))
	case "milvus":
		return milvusstore.New(c.Context, milvusstore.WithAddress(c.String("milvus-addr")))
	case "qdrant":
		return qdrantstore.New(
			qdrantstore.WithHost(c.String("qdrant-host")),
			qdrantstore.WithPort(c.Int("qdrant-port")),
		)
	default:
		return nil, fmt.Errorf("unknown store backend %q: must be one of badger, milvus, qdrant", backend)
	}
}

func buildEmbedder(c *cli.Context) (embedders.Embedder, error) {
	model := c.String("embedding-model")
	host := c.String("embedding-host")

	switch provider := c.String("embedder"); provider {
	case "openai":
		opts := []openaiembed.Option{openaiembed.WithAPIKey(c.String("api-key"))}
		if model != "" {
			opts = append(opts, openaiembed.WithModel(model))
		}
		if host != "" {
			opts = append(opts, openaiembed.WithBaseURL(host))
		}
		return openaiembed.New(opts...)
	case "ollama":
		var opts []ollamaembed.Option
		if model != "" {
			opts = append(opts, ollamaembed.WithModel(model))
		}
		if host != "" {
			opts = append(opts, ollamaembed.WithBaseURL(host))
		}
		return ollamaembed.New(opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: must be one of openai, ollama", provider)
	}
}

func buildClient(c *cli.Context) (clients.Client, error) {
	model := c.String("model")
	host := c.String("client-host")

	switch provider := c.String("client"); provider {
	case "openai":
		opts := []openaiclient.Option{openaiclient.WithAPIKey(c.String("api-key"))}
		if model != "" {
			opts = append(opts, openaiclient.WithModel(model))
		}
		if host != "" {
			opts = append(opts, openaiclient.WithBaseURL(host))
		}
		return openaiclient.New(opts...)
	case "ollama":
		var opts []ollamaclient.Option
		if model != "" {
			opts = append(opts, ollamaclient.WithModel(model))
		}
		if host != "" {
			opts = append(opts, ollamaclient.WithBaseURL(host))
		}
		return ollamaclient.New(opts...)
	default:
		return nil, fmt.Errorf("unknown chat provider %q: must be one of openai, ollama", provider)
	}
}

// snippet trims chunk text for one-line display.
func snippet(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= 80 {
		return s
	}
	return string(runes[:80]) + "..."
}
