// Package rediscache wraps an embeddings.Provider with a Redis cache.
//
// Embedding the same text twice always yields the same vector, so re-ingested
// documents and repeated queries can skip the upstream model entirely. Keys
// are derived from the model id and a SHA-256 of the input text; values are
// the raw little-endian float32 vector bytes.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/sandakan/pkg/provider/embeddings"
)

// DefaultTTL is the cache entry lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// Ensure Provider implements the embeddings.Provider interface.
var _ embeddings.Provider = (*Provider)(nil)

// Provider decorates an inner embeddings.Provider with a Redis cache.
// Cache failures are logged and degrade to the inner provider; they never
// fail an embedding call.
type Provider struct {
	inner    embeddings.Provider
	rdb      *redis.Client
	ttl      time.Duration
	password string
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithTTL overrides the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.ttl = ttl }
}

// WithPassword authenticates against a Redis server that requires AUTH.
func WithPassword(password string) Option {
	return func(p *Provider) { p.password = password }
}

// New wraps inner with a cache backed by the Redis server at addr
// (e.g. "localhost:6379").
func New(inner embeddings.Provider, addr string, opts ...Option) (*Provider, error) {
	if inner == nil {
		return nil, fmt.Errorf("rediscache: inner provider must not be nil")
	}
	if addr == "" {
		return nil, fmt.Errorf("rediscache: addr must not be empty")
	}

	p := &Provider{
		inner: inner,
		ttl:   DefaultTTL,
	}
	for _, o := range opts {
		o(p)
	}
	p.rdb = redis.NewClient(&redis.Options{Addr: addr, Password: p.password})
	return p, nil
}

// Close releases the Redis connection pool.
func (p *Provider) Close() error { return p.rdb.Close() }

// key derives the cache key for one text under the inner provider's model.
func (p *Provider) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + p.inner.ModelID() + ":" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	k := p.key(text)

	if raw, err := p.rdb.Get(ctx, k).Bytes(); err == nil {
		if vec, ok := decodeVector(raw); ok {
			return vec, nil
		}
	} else if err != redis.Nil && ctx.Err() == nil {
		slog.Warn("embedding cache read failed", "error", err)
	}

	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := p.rdb.Set(ctx, k, encodeVector(vec), p.ttl).Err(); err != nil && ctx.Err() == nil {
		slog.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// EmbedBatch implements embeddings.Provider. Cached texts are served from
// Redis; the remaining misses go upstream in a single batch call.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = p.key(t)
	}

	cached, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("embedding cache batch read failed", "error", err)
		cached = make([]any, len(texts))
	}

	for i := range texts {
		if raw, ok := cached[i].(string); ok {
			if vec, ok := decodeVector([]byte(raw)); ok {
				result[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}

	if len(missTexts) > 0 {
		vecs, err := p.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		pipe := p.rdb.Pipeline()
		for j, i := range missIdx {
			result[i] = vecs[j]
			pipe.Set(ctx, keys[i], encodeVector(vecs[j]), p.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("embedding cache batch write failed", "error", err)
		}
	}
	return result, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.inner.Dimensions() }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.inner.ModelID() }

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// decodeVector unpacks little-endian bytes into a float32 vector.
func decodeVector(raw []byte) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, true
}
