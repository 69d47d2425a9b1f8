package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/sandakan/pkg/provider/embeddings"
	"github.com/MrWong99/sandakan/pkg/provider/extract"
	"github.com/MrWong99/sandakan/pkg/provider/llmclient"
	"github.com/MrWong99/sandakan/pkg/provider/transcribe"
	"github.com/MrWong99/sandakan/pkg/staging"
	"github.com/MrWong99/sandakan/pkg/vectorstore"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// capability. It is safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	embeddings    map[string]func(ProviderEntry) (embeddings.Provider, error)
	llm           map[string]func(ProviderEntry) (llmclient.Client, error)
	transcription map[string]func(ProviderEntry) (transcribe.Engine, error)
	extraction    map[string]func(ProviderEntry) (extract.FileLoader, error)
	vectorStores  map[VectorStoreKind]func(VectorStoreConfig) (vectorstore.Store, error)
	stagingStores map[StagingKind]func(StagingConfig) (staging.Store, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		embeddings:    make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
		llm:           make(map[string]func(ProviderEntry) (llmclient.Client, error)),
		transcription: make(map[string]func(ProviderEntry) (transcribe.Engine, error)),
		extraction:    make(map[string]func(ProviderEntry) (extract.FileLoader, error)),
		vectorStores:  make(map[VectorStoreKind]func(VectorStoreConfig) (vectorstore.Store, error)),
		stagingStores: make(map[StagingKind]func(StagingConfig) (staging.Store, error)),
	}
}

// RegisterEmbeddings registers an embeddings provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// RegisterLLM registers an LLM client factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llmclient.Client, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTranscription registers a transcription engine factory under name.
func (r *Registry) RegisterTranscription(name string, factory func(ProviderEntry) (transcribe.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcription[name] = factory
}

// RegisterExtraction registers a file loader factory under name.
func (r *Registry) RegisterExtraction(name string, factory func(ProviderEntry) (extract.FileLoader, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extraction[name] = factory
}

// RegisterVectorStore registers a vector store factory under kind.
func (r *Registry) RegisterVectorStore(kind VectorStoreKind, factory func(VectorStoreConfig) (vectorstore.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorStores[kind] = factory
}

// RegisterStaging registers a staging store factory under kind.
func (r *Registry) RegisterStaging(kind StagingKind, factory func(StagingConfig) (staging.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stagingStores[kind] = factory
}

// CreateEmbeddings instantiates an embeddings provider using the factory
// registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM client using the factory registered under
// entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llmclient.Client, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTranscription instantiates a transcription engine using the factory
// registered under entry.Name.
func (r *Registry) CreateTranscription(entry ProviderEntry) (transcribe.Engine, error) {
	r.mu.RLock()
	factory, ok := r.transcription[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcription/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateExtraction instantiates a file loader using the factory registered
// under entry.Name.
func (r *Registry) CreateExtraction(entry ProviderEntry) (extract.FileLoader, error) {
	r.mu.RLock()
	factory, ok := r.extraction[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: extraction/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVectorStore instantiates a vector store using the factory
// registered under cfg.Kind.
func (r *Registry) CreateVectorStore(cfg VectorStoreConfig) (vectorstore.Store, error) {
	r.mu.RLock()
	factory, ok := r.vectorStores[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vector_store/%q", ErrProviderNotRegistered, cfg.Kind)
	}
	return factory(cfg)
}

// CreateStaging instantiates a staging store using the factory registered
// under cfg.Kind.
func (r *Registry) CreateStaging(cfg StagingConfig) (staging.Store, error) {
	r.mu.RLock()
	factory, ok := r.stagingStores[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: staging/%q", ErrProviderNotRegistered, cfg.Kind)
	}
	return factory(cfg)
}
