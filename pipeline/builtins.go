package pipeline

import (
	"context"
	"fmt"

	"github.com/poiesic/maestro/clients"
	azurechat "github.com/poiesic/maestro/clients/azure"
	googlechat "github.com/poiesic/maestro/clients/google"
	mistralchat "github.com/poiesic/maestro/clients/mistral"
	mockchat "github.com/poiesic/maestro/clients/mock"
	ollamachat "github.com/poiesic/maestro/clients/ollama"
	openaichat "github.com/poiesic/maestro/clients/openai"
	regolochat "github.com/poiesic/maestro/clients/regolo"
	watsonxchat "github.com/poiesic/maestro/clients/watsonx"
	"github.com/poiesic/maestro/embedders"
	azureembed "github.com/poiesic/maestro/embedders/azure"
	mistralembed "github.com/poiesic/maestro/embedders/mistral"
	mockembed "github.com/poiesic/maestro/embedders/mock"
	ollamaembed "github.com/poiesic/maestro/embedders/ollama"
	openaiembed "github.com/poiesic/maestro/embedders/openai"
	regoloembed "github.com/poiesic/maestro/embedders/regolo"
	"github.com/poiesic/maestro/retriever"
	"github.com/poiesic/maestro/splitter"
	"github.com/poiesic/maestro/vectorstore"
	badgerstore "github.com/poiesic/maestro/vectorstore/badger"
	milvusstore "github.com/poiesic/maestro/vectorstore/milvus"
	qdrantstore "github.com/poiesic/maestro/vectorstore/qdrant"
)

// DefaultRegistry returns a registry seeded with the bundled component
// types:
//
//   - splitter: text splitter (max_char, overlap, level, min_overlap_words)
//   - embedder: embedding stage (provider plus provider settings,
//     vector_field)
//   - client: model call on the "prompt" input (provider plus provider
//     settings)
//   - retriever: similarity search (embedder, store, collection, k)
//   - store-writer: persists chunks (store, collection)
//
// Provider and backend selection follow the same names the rest of the
// module uses: openai, azure, google, mistral, regolo, ollama, watsonx, and
// mock for clients; the same minus google and watsonx for embedders; milvus,
// qdrant, and badger for stores.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterComponent("splitter", buildSplitter)
	r.RegisterComponent("embedder", buildEmbedder)
	r.RegisterComponent("client", buildClient)
	r.RegisterComponent("retriever", buildRetriever)
	r.RegisterComponent("store-writer", buildStoreWriter)
	return r
}

func buildSplitter(cfg map[string]any) (Component, error) {
	var opts []splitter.Option
	if v := cfgInt(cfg, "max_char", 0); v > 0 {
		opts = append(opts, splitter.WithMaxChar(v))
	}
	if v := cfgInt(cfg, "overlap", 0); v > 0 {
		opts = append(opts, splitter.WithOverlap(v))
	}
	if v := cfgString(cfg, "level", ""); v != "" {
		opts = append(opts, splitter.WithLevel(splitter.Level(v)))
	}
	if v := cfgInt(cfg, "min_overlap_words", 0); v > 0 {
		opts = append(opts, splitter.WithMinOverlapWords(v))
	}
	s, err := splitter.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewSplitterComponent(s), nil
}

func buildEmbedder(cfg map[string]any) (Component, error) {
	e, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	return NewEmbedderComponent(e, cfgString(cfg, "vector_field", "")), nil
}

func buildClient(cfg map[string]any) (Component, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	var opts []clients.InvokeOption
	if v := cfgString(cfg, "system_prompt", ""); v != "" {
		opts = append(opts, clients.WithSystemPrompt(v))
	}
	return clients.AsComponent(c, opts...), nil
}

func buildRetriever(cfg map[string]any) (Component, error) {
	e, err := newEmbedder(cfgSection(cfg, "embedder"))
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	store, err := newStore(cfgSection(cfg, "store"))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return retriever.New(e, store, cfgString(cfg, "collection", ""), cfgInt(cfg, "k", 0))
}

func buildStoreWriter(cfg map[string]any) (Component, error) {
	store, err := newStore(cfgSection(cfg, "store"))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	collection := cfgString(cfg, "collection", "")
	if collection == "" {
		return nil, ErrCollectionRequired
	}
	return NewStoreWriterComponent(store, collection), nil
}

// newEmbedder constructs a provider embedder from a config section. The
// provider key selects the adapter; the remaining keys are provider
// settings.
func newEmbedder(cfg map[string]any) (embedders.Embedder, error) {
	provider := cfgString(cfg, "provider", "")
	switch provider {
	case "openai":
		opts := []openaiembed.Option{openaiembed.WithAPIKey(cfgString(cfg, "api_key", ""))}
		if v := cfgString(cfg, "model", ""); v != "" {
			opts = append(opts, openaiembed.WithModel(v))
		}
		if v := cfgString(cfg, "base_url", ""); v != "" {
			opts = append(opts, openaiembed.WithBaseURL(v))
		}
		if v := cfgString(cfg, "organization", ""); v != "" {
			opts = append(opts, openaiembed.WithOrganization(v))
		}
		if v := cfgInt(cfg, "dimensions", 0); v > 0 {
			opts = append(opts, openaiembed.WithDimensions(v))
		}
		return openaiembed.New(opts...)
	case "azure":
		opts := []azureembed.Option{
			azureembed.WithAPIKey(cfgString(cfg, "api_key", "")),
			azureembed.WithEndpoint(cfgString(cfg, "endpoint", "")),
			azureembed.WithDeployment(cfgString(cfg, "deployment", "")),
		}
		if v := cfgString(cfg, "api_version", ""); v != "" {
			opts = append(opts, azureembed.WithAPIVersion(v))
		}
		if v := cfgInt(cfg, "dimensions", 0); v > 0 {
			opts = append(opts, azureembed.WithDimensions(v))
		}
		return azureembed.New(opts...)
	case "mistral":
		opts := []mistralembed.Option{mistralembed.WithAPIKey(cfgString(cfg, "api_key", ""))}
		if v := cfgString(cfg, "model", ""); v != "" {
			opts = append(opts, mistralembed.WithModel(v))
		}
		if v := cfgString(cfg, "base_url", ""); v != "" {
			opts = append(opts, mistralembed.WithBaseURL(v))
		}
		return mistralembed.New(opts...)
	case "regolo":
		opts := []regoloembed.Option{regoloembed.WithAPIKey(cfgString(cfg, "api_key", ""))}
		if v := cfgString(cfg, "model", ""); v != "" {
			opts = append(opts, regoloembed.WithModel(v))
		}
		if v := cfgString(cfg, "base_url", ""); v != "" {
			opts = append(opts, regoloembed.WithBaseURL(v))
		}
		return regoloembed.New(opts...)
	case "ollama":
		var opts []ollamaembed.Option
		if v := cfgString(cfg, "base_url", ""); v != "" {
			opts = append(opts, ollamaembed.WithBaseURL(v))
		}
		if v := cfgString(cfg, "model", ""); v != "" {
			opts = append(opts, ollamaembed.WithModel(v))
		}
		return ollamaembed.New(opts...)
	case "mock":
		if v := cfgInt(cfg, "dim", 0); v > 0 {
			return mockembed.NewWithDim(v), nil
		}
		return mockembed.New(), nil
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", provider)
	}
}

// newClient constructs a provider client from a config section.
func newClient(cfg map[string]any) (clients.Client, error) {
	provider := cfgString(cfg, "provider", "")
	switch provider {
	case "openai":
		opts := []openaichat.Option{openaichat.WithAPIKey(cfgString(cfg, "api_key", ""))}
		if v := cfgString(cfg, "model", ""); v != "" {
			opts = append(opts, openaichat.WithModel(v))
		}
		if v := cfgString(cfg, "base_url", ""); v != "" {
			opts = append(opts, openaichat.WithBaseURL(v))
		}
		if v := cfgString(cfg, "organization", ""); v != "" {
			opts = append(opts, openaichat.WithOrganization(v))
		}
		return openaichat.New(opts...)
	case "azure":
		opts := []azurechat.Option{
			azurechat.WithAPIKey(cfgString(cfg, "api_key", "")),
			azurechat.WithEndpoint(cfgString(cfg, "endpoint", "")),
			azurechat.WithDeployment(cfgString(cfg, "deployment", "")),
		}
		if v := cfgString(cfg, "api_version", ""); v != "" {
			opts = append(opts, azurechat.WithAPIVersion(v))
		}
		return azurechat.New(opts...)
	case "google":
		opts := []googlechat.Option{googlechat.WithAPIKey(cfgString(cfg, "api_key", ""))}
		if v := cfgString(cfg, "model", ""); v != "" {
			opts = append(opts, googlechat.WithModel(v))
		}
		// The Google SDK dials at construction time.
		return googlechat.New(context.Background(), opts...)
	case "mistral":
		opts := []mistralchat.Option{mistralchat.WithAPIKey(cfgString(cfg, "api_key", ""))}
		if v := cfgString(cfg, "model", ""); v != "" {
			opts = append(opts, mistralchat.WithModel(v))
		}
		if v := cfgString(cfg, "base_url", ""); v != "" {
			opts = append(opts, mistralchat.WithBaseURL(v))
		}
		return mistralchat.New(opts...)
	case "regolo":
		opts := []regolochat.Option{regolochat.WithAPIKey(cfgString(cfg, "api_key", ""))}
		if v := cfgString(cfg, "model", ""); v != "" {
			opts = append(opts, regolochat.WithModel(v))
		}
		if v := cfgString(cfg, "base_url", ""); v != "" {
			opts = append(opts, regolochat.WithBaseURL(v))
		}
		return regolochat.New(opts...)
	case "ollama":
		var opts []ollamachat.Option
		if v := cfgString(cfg, "base_url", ""); v != "" {
			opts = append(opts, ollamachat.WithBaseURL(v))
		}
		if v := cfgString(cfg, "model", ""); v != "" {
			opts = append(opts, ollamachat.WithModel(v))
		}
		return ollamachat.New(opts...)
	case "watsonx":
		opts := []watsonxchat.Option{
			watsonxchat.WithAPIKey(cfgString(cfg, "api_key", "")),
			watsonxchat.WithURL(cfgString(cfg, "url", "")),
			watsonxchat.WithProjectID(cfgString(cfg, "project_id", "")),
		}
		if v := cfgString(cfg, "model", ""); v != "" {
			opts = append(opts, watsonxchat.WithModel(v))
		}
		return watsonxchat.New(opts...)
	case "mock":
		return mockchat.New(), nil
	default:
		return nil, fmt.Errorf("unknown client provider %q", provider)
	}
}

// newStore constructs a store backend from a config section. The backend
// key selects milvus, qdrant, or badger.
func newStore(cfg map[string]any) (vectorstore.Store, error) {
	backend := cfgString(cfg, "backend", "")
	switch backend {
	case "milvus":
		var opts []milvusstore.Option
		if v := cfgString(cfg, "address", ""); v != "" {
			opts = append(opts, milvusstore.WithAddress(v))
		}
		if user := cfgString(cfg, "username", ""); user != "" {
			opts = append(opts, milvusstore.WithAuth(user, cfgString(cfg, "password", "")))
		}
		if v := cfgString(cfg, "database", ""); v != "" {
			opts = append(opts, milvusstore.WithDatabase(v))
		}
		// Milvus dials at construction time.
		return milvusstore.New(context.Background(), opts...)
	case "qdrant":
		var opts []qdrantstore.Option
		if v := cfgString(cfg, "host", ""); v != "" {
			opts = append(opts, qdrantstore.WithHost(v))
		}
		if v := cfgInt(cfg, "port", 0); v > 0 {
			opts = append(opts, qdrantstore.WithPort(v))
		}
		if v := cfgString(cfg, "api_key", ""); v != "" {
			opts = append(opts, qdrantstore.WithAPIKey(v))
		}
		if cfgBool(cfg, "tls", false) {
			opts = append(opts, qdrantstore.WithTLS())
		}
		return qdrantstore.New(opts...)
	case "badger":
		var opts []badgerstore.Option
		if cfgBool(cfg, "in_memory", false) {
			opts = append(opts, badgerstore.WithInMemory())
		} else if v := cfgString(cfg, "path", ""); v != "" {
			opts = append(opts, badgerstore.WithPath(v))
		}
		return badgerstore.New(opts...)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
