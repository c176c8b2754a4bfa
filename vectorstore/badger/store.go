// Package badger implements vectorstore.Store on an embedded BadgerDB.
//
// It exists for tests, development, and small corpora: chunks are stored as
// JSON records and Search is an exhaustive cosine scan, so pipelines and
// retrievers run without a vector database server. The interface contract
// matches the server backends; only the scores differ in scale.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/vectorstore"
)

// Key prefixes for the two record types
const (
	collectionPrefix = "coll"
	chunkPrefix      = "chunk"
)

// makeCollectionKey generates the key holding a collection's vector configs.
func makeCollectionKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionPrefix, name))
}

// makeChunkKey generates the key for a chunk within a collection.
func makeChunkKey(collection, id string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", chunkPrefix, collection, id))
}

// makeChunkPrefix generates the iteration prefix for a collection's chunks.
func makeChunkPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", chunkPrefix, collection))
}

// loggerAdapter adapts slog.Logger to the badger.Logger interface. Badger is
// chatty at INFO, so its info output is demoted to debug.
type loggerAdapter struct {
	logger *slog.Logger
}

var _ badgerdb.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// Config holds the badger backend settings.
type Config struct {
	// Path is the database directory, created if missing. Ignored when
	// InMemory is set.
	Path string

	// InMemory keeps all data in memory, for tests.
	InMemory bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for Config.
type Option func(*Config) error

// WithPath sets the database directory.
func WithPath(path string) Option {
	return func(c *Config) error {
		c.Path = path
		return nil
	}
}

// WithInMemory keeps all data in memory.
func WithInMemory() Option {
	return func(c *Config) error {
		c.InMemory = true
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// Store implements vectorstore.Store on a BadgerDB instance.
type Store struct {
	db     *badgerdb.DB
	logger *slog.Logger
}

// New opens a badger-backed store. Without WithInMemory a path is required
// and its directory is created if missing.
//
// Returns the vectorstore.Store interface to prevent coupling to this
// backend's concrete type.
func New(opts ...Option) (vectorstore.Store, error) {
	var cfg Config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger-store")

	var dbOpts badgerdb.Options
	if cfg.InMemory {
		dbOpts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger: a path is required unless WithInMemory is set")
		}
		info, err := os.Stat(cfg.Path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(cfg.Path, 0755); err != nil {
				return nil, err
			}
		} else if !info.IsDir() {
			return nil, fmt.Errorf("badger: %s is not a directory", cfg.Path)
		}
		dbOpts = badgerdb.DefaultOptions(cfg.Path)
	}
	dbOpts.Logger = &loggerAdapter{logger: logger}
	dbOpts.Compression = options.None

	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateCollection records the collection and its vector configs. An
// existing collection logs a warning and is left untouched.
func (s *Store) CreateCollection(ctx context.Context, name string, vectors []core.VectorConfig) error {
	if name == "" {
		return fmt.Errorf("badger: collection name is required")
	}
	normalized := make([]core.VectorConfig, len(vectors))
	for i, v := range vectors {
		v.Normalize()
		if err := v.Validate(); err != nil {
			return err
		}
		normalized[i] = v
	}

	return s.db.Update(func(tx *badgerdb.Txn) error {
		key := makeCollectionKey(name)
		if _, err := tx.Get(key); err == nil {
			s.logger.Warn("collection already exists, skipping creation", "collection", name)
			return nil
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}

		encoded, err := json.Marshal(normalized)
		if err != nil {
			return fmt.Errorf("badger: encode collection config: %w", err)
		}
		if err := tx.Set(key, encoded); err != nil {
			return err
		}
		s.logger.Info("created collection", "collection", name)
		return nil
	})
}

// DropCollection removes the collection record and every chunk in it.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	err := s.db.Update(func(tx *badgerdb.Txn) error {
		if err := tx.Delete(makeCollectionKey(name)); err != nil {
			return err
		}

		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(name)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("dropped collection", "collection", name)
	return nil
}

// ListCollections returns the names of all collections.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	prefix := []byte(collectionPrefix + ":")
	var names []string
	err := s.db.View(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			names = append(names, string(bytes.TrimPrefix(key, prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// LoadCollection verifies the collection exists. Badger has no loaded
// state, so that is all it does.
func (s *Store) LoadCollection(ctx context.Context, name string) error {
	return s.requireCollection(name)
}

// ReleaseCollection verifies the collection exists; there is nothing to
// release.
func (s *Store) ReleaseCollection(ctx context.Context, name string) error {
	return s.requireCollection(name)
}

// CreateIndex is a no-op: the scan has no index to build.
func (s *Store) CreateIndex(ctx context.Context, collection, field string) error {
	if err := s.requireCollection(collection); err != nil {
		return err
	}
	s.logger.Debug("index request ignored, badger scans exhaustively",
		"collection", collection, "field", field)
	return nil
}

func (s *Store) requireCollection(name string) error {
	return s.db.View(func(tx *badgerdb.Txn) error {
		if _, err := tx.Get(makeCollectionKey(name)); err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
			}
			return err
		}
		return nil
	})
}

// Add stores chunks as JSON records. Chunks without an ID get a content-hash
// ID; a chunk without embeddings fails the batch before anything is
// written.
func (s *Store) Add(ctx context.Context, collection string, chunks []core.Chunk) error {
	if err := s.requireCollection(collection); err != nil {
		return err
	}
	for i := range chunks {
		if len(chunks[i].Embeddings) == 0 {
			return fmt.Errorf("chunk %d: %w", i, vectorstore.ErrMissingEmbedding)
		}
		if chunks[i].ID == "" {
			chunks[i].ID = core.HashID(chunks[i].Text)
		}
	}

	err := s.db.Update(func(tx *badgerdb.Txn) error {
		for _, chunk := range chunks {
			encoded, err := json.Marshal(chunk)
			if err != nil {
				return fmt.Errorf("badger: encode chunk %q: %w", chunk.ID, err)
			}
			if err := tx.Set(makeChunkKey(collection, chunk.ID), encoded); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("inserted chunks", "collection", collection, "count", len(chunks))
	return nil
}

// Search scans every chunk and ranks by cosine similarity. Badger has no
// filter language, so WithFilter is rejected; OutputFields is ignored since
// a record decodes whole either way.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, k int, opts ...vectorstore.SearchOption) ([]vectorstore.Result, error) {
	o := vectorstore.ApplySearchOptions(opts...)
	if o.Filter != "" {
		return nil, fmt.Errorf("badger: filter expressions are not supported")
	}
	if k <= 0 {
		k = vectorstore.DefaultK
	}
	field := o.VectorField
	if field == "" {
		field = core.DefaultVectorField
	}
	if err := s.requireCollection(collection); err != nil {
		return nil, err
	}

	var results []vectorstore.Result
	err := s.forEachChunk(collection, func(chunk core.Chunk) error {
		values, ok := chunk.Embedding(field)
		if !ok {
			return nil
		}
		results = append(results, vectorstore.Result{
			Chunk: chunk,
			Score: cosine(vector, values),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b vectorstore.Result) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Remove deletes chunks by ID. Unknown IDs are ignored.
func (s *Store) Remove(ctx context.Context, collection string, ids []string) error {
	if err := s.requireCollection(collection); err != nil {
		return err
	}
	err := s.db.Update(func(tx *badgerdb.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(makeChunkKey(collection, id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("deleted chunks", "collection", collection, "count", len(ids))
	return nil
}

// Retrieve returns the chunks stored under the given IDs exactly as they
// were added. Unknown IDs are skipped.
func (s *Store) Retrieve(ctx context.Context, collection string, ids []string) ([]core.Chunk, error) {
	if err := s.requireCollection(collection); err != nil {
		return nil, err
	}
	var chunks []core.Chunk
	err := s.db.View(func(tx *badgerdb.Txn) error {
		for _, id := range ids {
			item, err := tx.Get(makeChunkKey(collection, id))
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var chunk core.Chunk
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &chunk)
			}); err != nil {
				return fmt.Errorf("badger: decode chunk %q: %w", id, err)
			}
			chunks = append(chunks, chunk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// Dump returns every chunk in the collection.
func (s *Store) Dump(ctx context.Context, collection string) ([]core.Chunk, error) {
	if err := s.requireCollection(collection); err != nil {
		return nil, err
	}
	var chunks []core.Chunk
	err := s.forEachChunk(collection, func(chunk core.Chunk) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// forEachChunk iterates the collection's chunk records in key order.
func (s *Store) forEachChunk(collection string, fn func(core.Chunk) error) error {
	return s.db.View(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &chunk)
			})
			if err != nil {
				return fmt.Errorf("badger: decode chunk %q: %w", iter.Item().Key(), err)
			}
			if err := fn(chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

// cosine computes the cosine similarity of two vectors, 0 when either has
// zero magnitude or the lengths differ.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
