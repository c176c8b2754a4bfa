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


// Package qdrant implements vectorstore.Store against a Qdrant server over
// gRPC.
//
// Collections are created with named dense vectors and cosine distance.
// Chunk text and metadata travel in the point payload. Qdrant point IDs must
// be integers or UUIDs, so each chunk ID maps to a deterministic UUID and
// the original ID rides in the payload for the trip back.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	qdrantgo "github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/vectorstore"
)

var tracer = otel.Tracer("maestro.vectorstore.qdrant")

// Defaults for a local Qdrant server.
const (
	DefaultHost = "localhost"
	DefaultPort = 6334
)

const (
	payloadID       = "id"
	payloadText     = "text"
	payloadMetadata = "metadata"

	dumpPageSize = 100
)

// Config holds the Qdrant backend settings.
type Config struct {
	// Host and Port locate the gRPC endpoint.
	Host string
	Port int

	// APIKey authenticates when the server requires it.
	APIKey string

	// UseTLS enables transport security, required by Qdrant Cloud.
	UseTLS bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for Config.
type Option func(*Config) error

// WithHost sets the server host.
func WithHost(host string) Option {
	return func(c *Config) error {
		c.Host = host
		return nil
	}
}

// WithPort sets the gRPC port.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port <= 0 {
			return fmt.Errorf("port must be positive: %d", port)
		}
		c.Port = port
		return nil
	}
}

// WithAPIKey sets the server API key.
func WithAPIKey(key string) Option {
	return func(c *Config) error {
		c.APIKey = key
		return nil
	}
}

// WithTLS enables transport security.
func WithTLS() Option {
	return func(c *Config) error {
		c.UseTLS = true
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

// Store implements vectorstore.Store on a Qdrant connection.
type Store struct {
	qdrant *qdrantgo.Client
	logger *slog.Logger
}

// New connects to a Qdrant server.
//
// Returns the vectorstore.Store interface to prevent coupling to this
// backend's concrete type.
func New(opts ...Option) (vectorstore.Store, error) {
	cfg := Config{
		Host: DefaultHost,
		Port: DefaultPort,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	client, err := qdrantgo.NewClient(&qdrantgo.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		qdrant: client,
		logger: logger.With("component", "qdrant-store"),
	}, nil
}

// Close closes the Qdrant connection.
func (s *Store) Close() error {
	return s.qdrant.Close()
}

// pointID maps a chunk ID to the UUID Qdrant requires. The mapping is
// deterministic so Remove and Retrieve can recompute it from the chunk ID.
func pointID(id string) *qdrantgo.PointId {
	return qdrantgo.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// CreateCollection creates a collection with the given named vector fields.
// An existing collection logs a warning and is left untouched.
func (s *Store) CreateCollection(ctx context.Context, name string, vectors []core.VectorConfig) error {
	ctx, span := tracer.Start(ctx, "qdrant.CreateCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	exists, err := s.qdrant.CollectionExists(ctx, name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		s.logger.Warn("collection already exists, skipping creation", "collection", name)
		return nil
	}

	params, err := vectorParams(name, vectors)
	if err != nil {
		span.RecordError(err)
		return err
	}
	err = s.qdrant.CreateCollection(ctx, &qdrantgo.CreateCollection{
		CollectionName: name,
		VectorsConfig:  qdrantgo.NewVectorsConfigMap(params),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	s.logger.Info("created collection", "collection", name, "vector_fields", len(params))
	return nil
}

// vectorParams builds the named vector parameters for a collection.
func vectorParams(name string, vectors []core.VectorConfig) (map[string]*qdrantgo.VectorParams, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("collection %q needs at least one vector field", name)
	}
	params := make(map[string]*qdrantgo.VectorParams, len(vectors))
	for _, v := range vectors {
		v.Normalize()
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if v.Format != core.VectorFormatDense {
			return nil, fmt.Errorf("%w: field %q is %s", vectorstore.ErrUnsupportedVectorFormat, v.Name, v.Format)
		}
		params[v.Name] = &qdrantgo.VectorParams{
			Size:     uint64(v.Dim),
			Distance: qdrantgo.Distance_Cosine,
		}
	}
	return params, nil
}

// DropCollection removes a collection and all of its chunks.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "qdrant.DropCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	if err := s.qdrant.DeleteCollection(ctx, name); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	s.logger.Info("dropped collection", "collection", name)
	return nil
}

// ListCollections returns the names of all collections.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "qdrant.ListCollections")
	defer span.End()

	names, err := s.qdrant.ListCollections(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// LoadCollection verifies the collection exists. Qdrant keeps collections
// ready without an explicit load step.
func (s *Store) LoadCollection(ctx context.Context, name string) error {
	return s.requireCollection(ctx, name)
}

// ReleaseCollection verifies the collection exists; there is nothing to
// release.
func (s *Store) ReleaseCollection(ctx context.Context, name string) error {
	return s.requireCollection(ctx, name)
}

// CreateIndex is a no-op: Qdrant builds its HNSW index at collection
// creation.
func (s *Store) CreateIndex(ctx context.Context, collection, field string) error {
	if err := s.requireCollection(ctx, collection); err != nil {
		return err
	}
	s.logger.Debug("index request ignored, qdrant indexes at collection creation",
		"collection", collection, "field", field)
	return nil
}

func (s *Store) requireCollection(ctx context.Context, name string) error {
	exists, err := s.qdrant.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
	}
	return nil
}

// Add upserts chunks as points and waits for the write to land. Chunks
// without an ID get a content-hash ID; a chunk without embeddings fails the
// batch before anything is written.
func (s *Store) Add(ctx context.Context, collection string, chunks []core.Chunk) error {
	ctx, span := tracer.Start(ctx, "qdrant.Add",
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

	points := make([]*qdrantgo.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = encodePoint(chunk)
	}
	_, err := s.qdrant.Upsert(ctx, &qdrantgo.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrantgo.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	s.logger.Info("inserted chunks", "collection", collection, "count", len(chunks))
	return nil
}

// encodePoint converts a chunk to a Qdrant point.
func encodePoint(chunk core.Chunk) *qdrantgo.PointStruct {
	vectors := make(map[string]*qdrantgo.Vector, len(chunk.Embeddings))
	for _, v := range chunk.Embeddings {
		vectors[v.Name] = qdrantgo.NewVector(v.Values...)
	}
	meta := chunk.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return &qdrantgo.PointStruct{
		Id:      pointID(chunk.ID),
		Vectors: qdrantgo.NewVectorsMap(vectors),
		Payload: qdrantgo.NewValueMap(map[string]any{
			payloadID:       chunk.ID,
			payloadText:     chunk.Text,
			payloadMetadata: meta,
		}),
	}
}

// Search returns up to k chunks by descending cosine similarity. Qdrant has
// no string filter language, so WithFilter is rejected. Vectors are fetched
// only when the caller's output fields name one.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, k int, opts ...vectorstore.SearchOption) ([]vectorstore.Result, error) {
	o := vectorstore.ApplySearchOptions(opts...)
	if o.Filter != "" {
		return nil, fmt.Errorf("qdrant: filter expressions are not supported")
	}
	if k <= 0 {
		k = vectorstore.DefaultK
	}
	field := o.VectorField
	if field == "" {
		field = core.DefaultVectorField
	}

	ctx, span := tracer.Start(ctx, "qdrant.Search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("top_k", k),
		))
	defer span.End()

	scored, err := s.qdrant.Query(ctx, &qdrantgo.QueryPoints{
		CollectionName: collection,
		Query:          qdrantgo.NewQuery(vector...),
		Using:          qdrantgo.PtrOf(field),
		Limit:          qdrantgo.PtrOf(uint64(k)),
		WithPayload:    qdrantgo.NewWithPayload(true),
		WithVectors:    qdrantgo.NewWithVectors(wantsVectors(o.OutputFields)),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vectorstore.Result, 0, len(scored))
	for _, point := range scored {
		results = append(results, vectorstore.Result{
			Chunk: decodePoint(point.GetId(), point.GetPayload(), point.GetVectors()),
			Score: point.GetScore(),
		})
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	return results, nil
}

// wantsVectors reports whether the output fields ask for anything beyond the
// scalar payload.
func wantsVectors(fields []string) bool {
	for _, f := range fields {
		switch f {
		case payloadID, payloadText, payloadMetadata:
		default:
			return true
		}
	}
	return false
}

// Remove deletes chunks by ID and waits for the write to land. Unknown IDs
// are ignored.
func (s *Store) Remove(ctx context.Context, collection string, ids []string) error {
	ctx, span := tracer.Start(ctx, "qdrant.Remove",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(ids)),
		))
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrantgo.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}
	_, err := s.qdrant.Delete(ctx, &qdrantgo.DeletePoints{
		CollectionName: collection,
		Points:         qdrantgo.NewPointsSelector(pointIDs...),
		Wait:           qdrantgo.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	s.logger.Info("deleted chunks", "collection", collection, "count", len(ids))
	return nil
}

// Retrieve returns the chunks stored under the given IDs with payload and
// vectors. Unknown IDs are skipped.
func (s *Store) Retrieve(ctx context.Context, collection string, ids []string) ([]core.Chunk, error) {
	ctx, span := tracer.Start(ctx, "qdrant.Retrieve",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(ids)),
		))
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrantgo.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}
	points, err := s.qdrant.Get(ctx, &qdrantgo.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    qdrantgo.NewWithPayload(true),
		WithVectors:    qdrantgo.NewWithVectors(true),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve chunks: %w", err)
	}

	chunks := make([]core.Chunk, 0, len(points))
	for _, point := range points {
		chunks = append(chunks, decodePoint(point.GetId(), point.GetPayload(), point.GetVectors()))
	}
	return chunks, nil
}

// Dump returns every chunk in the collection, scrolling through it.
func (s *Store) Dump(ctx context.Context, collection string) ([]core.Chunk, error) {
	ctx, span := tracer.Start(ctx, "qdrant.Dump",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	// The wrapped Scroll drops the paging cursor, so this uses the points
	// client directly.
	points := s.qdrant.GetPointsClient()
	var all []core.Chunk
	var offset *qdrantgo.PointId
	for {
		resp, err := points.Scroll(ctx, &qdrantgo.ScrollPoints{
			CollectionName: collection,
			Limit:          qdrantgo.PtrOf(uint32(dumpPageSize)),
			Offset:         offset,
			WithPayload:    qdrantgo.NewWithPayload(true),
			WithVectors:    qdrantgo.NewWithVectors(true),
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to dump collection: %w", err)
		}
		for _, point := range resp.GetResult() {
			all = append(all, decodePoint(point.GetId(), point.GetPayload(), point.GetVectors()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(all)))
	return all, nil
}

// decodePoint rebuilds a chunk from a point's payload and vectors. The chunk
// ID comes from the payload; the point UUID is a fallback for points written
// by other tools.
func decodePoint(id *qdrantgo.PointId, payload map[string]*qdrantgo.Value, vectors *qdrantgo.VectorsOutput) core.Chunk {
	var chunk core.Chunk

	chunk.ID = payload[payloadID].GetStringValue()
	if chunk.ID == "" {
		chunk.ID = id.GetUuid()
	}
	chunk.Text = payload[payloadText].GetStringValue()
	if meta := payload[payloadMetadata].GetStructValue(); meta != nil {
		chunk.Metadata = fieldsToMap(meta.GetFields())
	}

	switch {
	case vectors.GetVectors() != nil:
		for name, vec := range vectors.GetVectors().GetVectors() {
			chunk.AttachEmbedding(name, vec.GetData())
		}
	case vectors.GetVector() != nil:
		chunk.AttachEmbedding(core.DefaultVectorField, vectors.GetVector().GetData())
	}

	return chunk
}

// fieldsToMap converts a payload struct back to plain Go values.
func fieldsToMap(fields map[string]*qdrantgo.Value) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		out[key] = valueToAny(value)
	}
	return out
}

// valueToAny converts one payload value back to a plain Go value.
func valueToAny(value *qdrantgo.Value) any {
	switch kind := value.GetKind().(type) {
	case *qdrantgo.Value_BoolValue:
		return kind.BoolValue
	case *qdrantgo.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrantgo.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrantgo.Value_StringValue:
		return kind.StringValue
	case *qdrantgo.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = valueToAny(item)
		}
		return out
	case *qdrantgo.Value_StructValue:
		return fieldsToMap(kind.StructValue.GetFields())
	default:
		return nil
	}
}
