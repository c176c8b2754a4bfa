package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	badgerstore "github.com/poiesic/maestro/vectorstore/badger"
)

func runApp(t *testing.T, args ...string) error {
	t.Helper()
	return newApp().Run(append([]string{"maestro"}, args...))
}

func TestGlobalFlagDefaults(t *testing.T) {
	app := newApp()

	defaults := map[string]string{
		"log-level":  "info",
		"store":      "badger",
		"db":         "./maestro_db",
		"collection": "documents",
		"embedder":   "ollama",
		"client":     "ollama",
	}

	for name, want := range defaults {
		t.Run(name, func(t *testing.T) {
			var found *cli.StringFlag
			for _, flag := range app.Flags {
				if f, ok := flag.(*cli.StringFlag); ok && f.Name == name {
					found = f
					break
				}
			}
			require.NotNil(t, found)
			assert.Equal(t, want, found.Value)
		})
	}
}

func TestAPIKeyFlagEnvFallback(t *testing.T) {
	app := newApp()

	var keyFlag *cli.StringFlag
	for _, flag := range app.Flags {
		if f, ok := flag.(*cli.StringFlag); ok && f.Name == "api-key" {
			keyFlag = f
			break
		}
	}
	require.NotNil(t, keyFlag)
	assert.Contains(t, keyFlag.EnvVars, "OPENAI_API_KEY")
}

func TestSetupLoggerRejectsInvalidLevel(t *testing.T) {
	err := runApp(t, "--log-level", "loud", "collections", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
	assert.Contains(t, err.Error(), "loud")
}

func TestUnknownStoreBackend(t *testing.T) {
	err := runApp(t, "--store", "bogus", "collections", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store backend "bogus"`)
}

func TestUnknownEmbeddingProvider(t *testing.T) {
	dir := t.TempDir()
	err := runApp(t, "--db", filepath.Join(dir, "db"), "--embedder", "bogus",
		"collections", "create", "notes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown embedding provider "bogus"`)
}

func TestCollectionsLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")

	err := runApp(t, "--db", dbPath, "collections", "create", "notes", "--dim", "8")
	require.NoError(t, err)

	// The collection survives across command invocations.
	store, err := badgerstore.New(badgerstore.WithPath(dbPath))
	require.NoError(t, err)
	names, err := store.ListCollections(context.Background())
	require.NoError(t, store.Close())
	require.NoError(t, err)
	assert.Contains(t, names, "notes")

	require.NoError(t, runApp(t, "--db", dbPath, "collections", "list"))
	require.NoError(t, runApp(t, "--db", dbPath, "collections", "drop", "notes"))

	store, err = badgerstore.New(badgerstore.WithPath(dbPath))
	require.NoError(t, err)
	names, err = store.ListCollections(context.Background())
	require.NoError(t, store.Close())
	require.NoError(t, err)
	assert.NotContains(t, names, "notes")
}

func TestCollectionsCreateRequiresName(t *testing.T) {
	err := runApp(t, "collections", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection name is required")
}

func TestDumpEmptyCollection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	require.NoError(t, runApp(t, "--db", dbPath, "collections", "create", "documents", "--dim", "4"))
	require.NoError(t, runApp(t, "--db", dbPath, "dump"))
}

func TestIngestRequiresFiles(t *testing.T) {
	err := runApp(t, "ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one file")
}

func TestSearchRequiresQuery(t *testing.T) {
	err := runApp(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

func TestAskRequiresQuestion(t *testing.T) {
	err := runApp(t, "ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question is required")
}

func TestReindexValidation(t *testing.T) {
	t.Run("batch-size must be positive", func(t *testing.T) {
		err := runApp(t, "reindex", "--batch-size", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch-size must be greater than 0")
	})

	t.Run("report-interval must be positive", func(t *testing.T) {
		err := runApp(t, "reindex", "--report-interval", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "report-interval must be greater than 0")
	})

	t.Run("max-retries must be positive", func(t *testing.T) {
		err := runApp(t, "reindex", "--max-retries", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max-retries must be greater than 0")
	})
}

func TestConfigFileProvidesDefaults(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "from_config_db")

	configPath := filepath.Join(dir, "maestro.yaml")
	config := "store: badger\ndb: " + dbPath + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))

	err := runApp(t, "--config", configPath, "collections", "create", "notes", "--dim", "4")
	require.NoError(t, err)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "the store should open at the path from the config file")
}

func TestConfigFileLosesToExplicitFlags(t *testing.T) {
	dir := t.TempDir()
	configDB := filepath.Join(dir, "config_db")
	flagDB := filepath.Join(dir, "flag_db")

	configPath := filepath.Join(dir, "maestro.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("db: "+configDB+"\n"), 0o644))

	err := runApp(t, "--config", configPath, "--db", flagDB,
		"collections", "create", "notes", "--dim", "4")
	require.NoError(t, err)

	_, err = os.Stat(flagDB)
	assert.NoError(t, err)
	_, err = os.Stat(configDB)
	assert.True(t, os.IsNotExist(err), "the config file path should be ignored")
}

func TestConfigFileMissing(t *testing.T) {
	err := runApp(t, "--config", "/nonexistent/maestro.yaml", "collections", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestTraceFlagCollectsCommandSpan(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	err := runApp(t, "--db", dbPath, "--trace", "collections", "create", "notes", "--dim", "4")
	require.NoError(t, err)

	require.NotNil(t, traceCollector)
	spans := traceCollector.Spans()
	require.NotEmpty(t, spans)
	assert.Equal(t, "collections", spans[len(spans)-1].Name())
}

func TestTraceCollectorClearedWithoutFlag(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	require.NoError(t, runApp(t, "--db", dbPath, "collections", "create", "notes", "--dim", "4"))
	assert.Nil(t, traceCollector)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet("short"))
	assert.Equal(t, "line one line two", snippet("line one\nline two"))

	long := strings.Repeat("x", 100)
	got := snippet(long)
	assert.Len(t, []rune(got), 83)
	assert.True(t, strings.HasSuffix(got, "..."))
}
