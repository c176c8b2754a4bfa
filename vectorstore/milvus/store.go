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


// Package milvus implements vectorstore.Store against a Milvus server.
//
// Collections get a VarChar id primary key, a VarChar text field, a JSON
// metadata field, and one FloatVector field per core.VectorConfig. Indexes
// default to HNSW with COSINE similarity, so higher scores mean closer.
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/vectorstore"
)

var tracer = otel.Tracer("maestro.vectorstore.milvus")

// DefaultAddress is the local Milvus gRPC endpoint.
const DefaultAddress = "localhost:19530"

const (
	fieldID       = "id"
	fieldText     = "text"
	fieldMetadata = "metadata"

	idMaxLength   = "128"
	textMaxLength = "65535"

	dumpPageSize = 100
)

// Config holds the Milvus backend settings.
type Config struct {
	// Address is the gRPC endpoint, host:port.
	Address string

	// Username and Password authenticate when the server requires it.
	Username string
	Password string

	// Database scopes all operations; empty means the server default.
	Database string

	// HNSWM and HNSWEfConstruction tune the default index.
	HNSWM              int
	HNSWEfConstruction int

	// SearchEf is the HNSW ef parameter used for every search.
	SearchEf int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for Config.
type Option func(*Config) error

// WithAddress sets the gRPC endpoint.
func WithAddress(addr string) Option {
	return func(c *Config) error {
		c.Address = addr
		return nil
	}
}

// WithAuth sets the server credentials.
func WithAuth(username, password string) Option {
	return func(c *Config) error {
		c.Username = username
		c.Password = password
		return nil
	}
}

// WithDatabase scopes operations to the named database.
func WithDatabase(name string) Option {
	return func(c *Config) error {
		c.Database = name
		return nil
	}
}

// WithHNSW tunes the default index parameters.
func WithHNSW(m, efConstruction int) Option {
	return func(c *Config) error {
		if m <= 0 || efConstruction <= 0 {
			return fmt.Errorf("hnsw parameters must be positive: M=%d efConstruction=%d", m, efConstruction)
		}
		c.HNSWM = m
		c.HNSWEfConstruction = efConstruction
		return nil
	}
}

// WithSearchEf sets the HNSW ef search parameter.
func WithSearchEf(ef int) Option {
	return func(c *Config) error {
		if ef <= 0 {
			return fmt.Errorf("search ef must be positive: %d", ef)
		}
		c.SearchEf = ef
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

// Store implements vectorstore.Store on a Milvus connection.
type Store struct {
	milvus   client.Client
	searchEf int
	hnswM    int
	hnswEf   int
	logger   *slog.Logger
}

// New connects to a Milvus server.
//
// Returns the vectorstore.Store interface to prevent coupling to this
// backend's concrete type.
func New(ctx context.Context, opts ...Option) (vectorstore.Store, error) {
	cfg := Config{
		Address:            DefaultAddress,
		HNSWM:              16,
		HNSWEfConstruction: 200,
		SearchEf:           128,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		milvus:   milvusClient,
		searchEf: cfg.SearchEf,
		hnswM:    cfg.HNSWM,
		hnswEf:   cfg.HNSWEfConstruction,
		logger:   logger.With("component", "milvus-store"),
	}, nil
}

// Close closes the Milvus connection.
func (s *Store) Close() error {
	return s.milvus.Close()
}

// CreateCollection creates a collection with the given vector fields. An
// existing collection logs a warning and is left untouched.
func (s *Store) CreateCollection(ctx context.Context, name string, vectors []core.VectorConfig) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	exists, err := s.milvus.HasCollection(ctx, name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		s.logger.Warn("collection already exists, skipping creation", "collection", name)
		return nil
	}

	schema, err := collectionSchema(name, vectors)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	s.logger.Info("created collection", "collection", name, "vector_fields", len(schema.Fields)-3)
	return nil
}

// collectionSchema builds the Milvus schema for a collection: id, text,
// metadata, and one FloatVector field per config.
func collectionSchema(name string, vectors []core.VectorConfig) (*entity.Schema, error) {
	fields := []*entity.Field{
		{
			Name:       fieldID,
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: true,
			AutoID:     false,
			TypeParams: map[string]string{"max_length": idMaxLength},
		},
		{
			Name:       fieldText,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": textMaxLength},
		},
		{
			Name:     fieldMetadata,
			DataType: entity.FieldTypeJSON,
		},
	}

	if len(vectors) == 0 {
		return nil, fmt.Errorf("collection %q needs at least one vector field", name)
	}
	for _, v := range vectors {
		v.Normalize()
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if v.Format != core.VectorFormatDense {
			return nil, fmt.Errorf("%w: field %q is %s", vectorstore.ErrUnsupportedVectorFormat, v.Name, v.Format)
		}
		fields = append(fields, &entity.Field{
			Name:       v.Name,
			DataType:   entity.FieldTypeFloatVector,
			TypeParams: map[string]string{"dim": strconv.Itoa(v.Dim)},
		})
	}

	return &entity.Schema{
		CollectionName: name,
		Description:    "maestro chunk collection",
		Fields:         fields,
	}, nil
}

// DropCollection removes a collection and all of its chunks.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.DropCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	if err := s.milvus.DropCollection(ctx, name); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	s.logger.Info("dropped collection", "collection", name)
	return nil
}

// ListCollections returns the names of all collections.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "milvus.ListCollections")
	defer span.End()

	collections, err := s.milvus.ListCollections(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.Name)
	}
	return names, nil
}

// LoadCollection brings a collection into memory for search.
func (s *Store) LoadCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	if err := s.milvus.LoadCollection(ctx, name, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// ReleaseCollection releases a collection from memory.
func (s *Store) ReleaseCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.ReleaseCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	if err := s.milvus.ReleaseCollection(ctx, name); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release collection: %w", err)
	}
	return nil
}

// CreateIndex builds an HNSW/COSINE index on the given vector field. An
// existing index on the field is left alone.
func (s *Store) CreateIndex(ctx context.Context, collection, field string) error {
	if field == "" {
		field = core.DefaultVectorField
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("field", field),
		))
	defer span.End()

	// DescribeIndex errors when no index exists; that is the create path.
	if existing, err := s.milvus.DescribeIndex(ctx, collection, field); err == nil && len(existing) > 0 {
		s.logger.Debug("index already exists", "collection", collection, "field", field)
		return nil
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, s.hnswM, s.hnswEf)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	if err := s.milvus.CreateIndex(ctx, collection, field, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	s.logger.Info("created index", "collection", collection, "field", field)
	return nil
}

// Add inserts chunks and flushes the collection. Chunks without an ID get a
// content-hash ID; chunks without embeddings fail the whole batch.
func (s *Store) Add(ctx context.Context, collection string, chunks []core.Chunk) error {
	ctx, span := tracer.Start(ctx, "milvus.Add",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(chunks)),
		))
	defer span.End()

	if len(chunks) == 0 {
		return nil
	}

	for i := range chunks {
		if len(chunks[i].Embeddings) == 0 {
			return fmt.Errorf("chunk %d: %w", i, vectorstore.ErrMissingEmbedding)
		}
		if chunks[i].ID == "" {
			chunks[i].ID = core.HashID(chunks[i].Text)
		}
	}

	columns, err := insertColumns(chunks)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if _, err := s.milvus.Insert(ctx, collection, "", columns...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := s.milvus.Flush(ctx, collection, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to flush collection: %w", err)
	}

	s.logger.Info("inserted chunks", "collection", collection, "count", len(chunks))
	return nil
}

// insertColumns builds the column set for an insert. The first chunk fixes
// which vector fields the batch carries; every chunk must supply all of
// them.
func insertColumns(chunks []core.Chunk) ([]entity.Column, error) {
	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	metadatas := make([][]byte, len(chunks))

	for i, c := range chunks {
		ids[i] = c.ID
		texts[i] = c.Text
		meta := c.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		encoded, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("chunk %q: encode metadata: %w", c.ID, err)
		}
		metadatas[i] = encoded
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnJSONBytes(fieldMetadata, metadatas),
	}

	for _, named := range chunks[0].Embeddings {
		vectors := make([][]float32, len(chunks))
		for i, c := range chunks {
			values, ok := c.Embedding(named.Name)
			if !ok {
				return nil, fmt.Errorf("chunk %q missing embedding %q", c.ID, named.Name)
			}
			vectors[i] = values
		}
		columns = append(columns, entity.NewColumnFloatVector(named.Name, len(named.Values), vectors))
	}

	return columns, nil
}

// Search returns up to k chunks by descending COSINE similarity.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, k int, opts ...vectorstore.SearchOption) ([]vectorstore.Result, error) {
	o := vectorstore.ApplySearchOptions(opts...)
	if k <= 0 {
		k = vectorstore.DefaultK
	}
	vectorField := o.VectorField
	if vectorField == "" {
		vectorField = core.DefaultVectorField
	}
	outputFields := o.OutputFields
	if len(outputFields) == 0 {
		outputFields = []string{fieldID, fieldText, fieldMetadata}
	}

	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("top_k", k),
		))
	defer span.End()

	sp, err := entity.NewIndexHNSWSearchParam(s.searchEf)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := s.milvus.Search(ctx,
		collection,
		nil,
		o.Filter,
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		vectorField,
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var hits []vectorstore.Result
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			chunk, err := decodeChunk(result.Fields, i)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			hits = append(hits, vectorstore.Result{Chunk: chunk, Score: result.Scores[i]})
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// Remove deletes chunks by ID and flushes the collection.
func (s *Store) Remove(ctx context.Context, collection string, ids []string) error {
	ctx, span := tracer.Start(ctx, "milvus.Remove",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(ids)),
		))
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	if err := s.milvus.Delete(ctx, collection, "", idInExpr(ids)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := s.milvus.Flush(ctx, collection, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to flush collection: %w", err)
	}

	s.logger.Info("deleted chunks", "collection", collection, "count", len(ids))
	return nil
}

// idInExpr builds the `id in [...]` filter for string primary keys.
func idInExpr(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("%s in [%s]", fieldID, strings.Join(quoted, ", "))
}

// Retrieve returns the chunks stored under the given IDs with all fields,
// embeddings included. Unknown IDs are skipped.
func (s *Store) Retrieve(ctx context.Context, collection string, ids []string) ([]core.Chunk, error) {
	ctx, span := tracer.Start(ctx, "milvus.Retrieve",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(ids)),
		))
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	fields, err := s.allFields(ctx, collection)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resultSet, err := s.milvus.Query(ctx, collection, nil, idInExpr(ids), fields)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	chunks, err := decodeChunks(resultSet)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return chunks, nil
}

// Dump returns every chunk in the collection, paging through it.
func (s *Store) Dump(ctx context.Context, collection string) ([]core.Chunk, error) {
	ctx, span := tracer.Start(ctx, "milvus.Dump",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	fields, err := s.allFields(ctx, collection)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var all []core.Chunk
	for offset := int64(0); ; offset += dumpPageSize {
		resultSet, err := s.milvus.Query(ctx, collection, nil, "", fields,
			client.WithOffset(offset), client.WithLimit(dumpPageSize))
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to dump collection: %w", err)
		}
		page, err := decodeChunks(resultSet)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
	}

	span.SetAttributes(attribute.Int("result_count", len(all)))
	return all, nil
}

// allFields lists every field of the collection schema.
func (s *Store) allFields(ctx context.Context, collection string) ([]string, error) {
	described, err := s.milvus.DescribeCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to describe collection: %w", err)
	}
	names := make([]string, 0, len(described.Schema.Fields))
	for _, f := range described.Schema.Fields {
		names = append(names, f.Name)
	}
	return names, nil
}

// decodeChunks decodes a whole result set.
func decodeChunks(fields client.ResultSet) ([]core.Chunk, error) {
	rows := 0
	if idCol := fields.GetColumn(fieldID); idCol != nil {
		rows = idCol.Len()
	}
	chunks := make([]core.Chunk, 0, rows)
	for i := 0; i < rows; i++ {
		chunk, err := decodeChunk(fields, i)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// decodeChunk rebuilds one chunk from row i of a result set. Vector columns
// become named embeddings; absent columns are simply skipped.
func decodeChunk(fields client.ResultSet, i int) (core.Chunk, error) {
	var chunk core.Chunk

	if col, ok := fields.GetColumn(fieldID).(*entity.ColumnVarChar); ok {
		chunk.ID = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldText).(*entity.ColumnVarChar); ok {
		chunk.Text = col.Data()[i]
	}
	if col, ok := fields.GetColumn(fieldMetadata).(*entity.ColumnJSONBytes); ok {
		raw := col.Data()[i]
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &chunk.Metadata); err != nil {
				return core.Chunk{}, fmt.Errorf("chunk %q: decode metadata: %w", chunk.ID, err)
			}
		}
	}
	for _, col := range fields {
		if vec, ok := col.(*entity.ColumnFloatVector); ok {
			chunk.AttachEmbedding(vec.Name(), vec.Data()[i])
		}
	}

	return chunk, nil
}
