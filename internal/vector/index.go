// File path: internal/vector/index.go
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/repolens/repolens/internal/chunker"
	"github.com/repolens/repolens/internal/common"
	"github.com/repolens/repolens/internal/repo"
)

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// SearchResult pairs a stored chunk with its cosine similarity to the query.
type SearchResult struct {
	Chunk chunker.Chunk `json:"chunk"`
	Score float64       `json:"score"`
}

// CollectionStats summarizes a repository collection.
type CollectionStats struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

// Index ties an Embedder to a Store: it embeds chunk batches on ingest and
// answers similarity queries by brute-force cosine scan over a collection.
type Index struct {
	store      Store
	embedder   Embedder
	batchSize  int
	batchDelay time.Duration
}

func NewIndex(store Store, embedder Embedder, cfg Config) *Index {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	batchDelay := cfg.BatchDelay
	if batchDelay < 0 {
		batchDelay = 0
	}
	return &Index{
		store:      store,
		embedder:   embedder,
		batchSize:  batchSize,
		batchDelay: batchDelay,
	}
}

// CollectionName maps a repository identifier to its collection name.
func CollectionName(repoID string) string {
	return repo.NormalizeID(repoID)
}

// InitializeCollection creates the repository's collection if it does not
// already exist. Safe to call repeatedly.
func (idx *Index) InitializeCollection(ctx context.Context, repoID string) error {
	collection := CollectionName(repoID)
	if err := idx.store.EnsureCollection(ctx, collection); err != nil {
		return fmt.Errorf("initialize collection: %w", err)
	}
	common.Logger().Debug("vector: collection ready", "collection", collection)
	return nil
}

// AddChunks embeds and stores chunks in fixed-size batches, pausing between
// batches to stay under embedding provider rate limits. The progress callback
// fires after each persisted batch with the 1-based batch number and the
// total batch count. A batch failure aborts the ingest; earlier batches
// remain stored.
func (idx *Index) AddChunks(ctx context.Context, repoID string, chunks []chunker.Chunk, progress func(batch, total int)) error {
	if len(chunks) == 0 {
		return nil
	}
	collection := CollectionName(repoID)
	totalBatches := (len(chunks) + idx.batchSize - 1) / idx.batchSize
	logger := common.Logger()
	logger.Info("vector: adding chunks", "collection", collection, "chunks", len(chunks), "batches", totalBatches)
	for batchNum := 1; batchNum <= totalBatches; batchNum++ {
		start := (batchNum - 1) * idx.batchSize
		end := start + idx.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}
		vectors, err := idx.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d/%d: %w", batchNum, totalBatches, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch %d/%d: expected %d vectors, got %d", batchNum, totalBatches, len(batch), len(vectors))
		}
		now := time.Now().UTC()
		stored := make([]StoredChunk, len(batch))
		for i, chunk := range batch {
			stored[i] = StoredChunk{Chunk: chunk, Vector: vectors[i], CreatedAt: now}
		}
		if err := idx.store.Upsert(ctx, collection, stored); err != nil {
			return fmt.Errorf("store batch %d/%d: %w", batchNum, totalBatches, err)
		}
		if progress != nil {
			progress(batchNum, totalBatches)
		}
		if batchNum < totalBatches && idx.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idx.batchDelay):
			}
		}
	}
	return nil
}

// SearchSimilar embeds the query once and returns the top limit chunks by
// cosine similarity, highest first.
func (idx *Index) SearchSimilar(ctx context.Context, repoID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	vectors, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}
	queryVec := vectors[0]
	collection := CollectionName(repoID)
	stored, err := idx.store.All(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("search collection: %w", err)
	}
	results := make([]SearchResult, 0, len(stored))
	for _, item := range stored {
		results = append(results, SearchResult{
			Chunk: item.Chunk,
			Score: cosineSimilarity(queryVec, item.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Stats reports the stored chunk count for a repository. Lookup failures are
// logged and reported as an empty collection rather than surfaced.
func (idx *Index) Stats(ctx context.Context, repoID string) CollectionStats {
	collection := CollectionName(repoID)
	count, err := idx.store.Count(ctx, collection)
	if err != nil {
		common.Logger().Warn("vector: stats unavailable", "collection", collection, "error", err)
		return CollectionStats{Collection: collection}
	}
	return CollectionStats{Collection: collection, Count: count}
}

// DeleteCollection removes the repository's collection and all its chunks.
func (idx *Index) DeleteCollection(ctx context.Context, repoID string) error {
	collection := CollectionName(repoID)
	if err := idx.store.Drop(ctx, collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

// cosineSimilarity returns 0 for mismatched lengths or zero-magnitude
// vectors rather than NaN.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
