package knowledge

import (
	"context"
	"sort"
	"sync"

	"inboxpilot/internal/embedding"
	"inboxpilot/internal/logging"
)

// RankedFact is a fact scored by relevance to an inbound message.
type RankedFact struct {
	Fact       Fact
	Similarity float64
	Rank       int // 1-based
}

// RankerConfig holds ranker tuning.
type RankerConfig struct {
	// TopK is the number of facts to return (default: 5)
	TopK int

	// MinSimilarity drops facts below this threshold (default: 0.3)
	MinSimilarity float64
}

// DefaultRankerConfig returns sensible defaults.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		TopK:          5,
		MinSimilarity: 0.3,
	}
}

// Ranker selects the facts most relevant to an inbound message so the
// drafting prompt stays small and grounded. Fact embeddings are cached by
// fact text; a snapshot edit invalidates only the changed entries.
type Ranker struct {
	mu     sync.RWMutex
	engine embedding.Engine
	cache  map[string][]float32 // fact text -> embedding
	config RankerConfig
}

// NewRanker creates a ranker backed by an embedding engine.
// A nil engine is allowed: ranking degrades to "all facts, unranked".
func NewRanker(engine embedding.Engine) *Ranker {
	return &Ranker{
		engine: engine,
		cache:  make(map[string][]float32),
		config: DefaultRankerConfig(),
	}
}

// SetConfig updates the ranker configuration.
func (r *Ranker) SetConfig(cfg RankerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
}

// Rank scores the snapshot's facts against the message text and returns the
// top-k by cosine similarity. On any embedding failure the full fact list is
// returned unranked: a decision with extra facts beats a failed decision.
func (r *Ranker) Rank(ctx context.Context, messageText string, snap Snapshot) []RankedFact {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Ranker.Rank")
	defer timer.Stop()

	r.mu.RLock()
	engine := r.engine
	cfg := r.config
	r.mu.RUnlock()

	if engine == nil || len(snap.Facts) == 0 {
		return allUnranked(snap.Facts)
	}

	queryEmbed, err := r.embedQuery(ctx, engine, messageText)
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Warn("Query embedding failed: %v, returning all facts", err)
		return allUnranked(snap.Facts)
	}

	type scored struct {
		fact       Fact
		similarity float64
	}

	candidates := make([]scored, 0, len(snap.Facts))
	for _, fact := range snap.Facts {
		factEmbed, err := r.embedFact(ctx, engine, fact.Text)
		if err != nil {
			logging.EmbeddingDebug("Fact embedding failed for %s: %v", fact.ID, err)
			return allUnranked(snap.Facts)
		}

		sim, err := embedding.CosineSimilarity(queryEmbed, factEmbed)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{fact: fact, similarity: sim})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].similarity > candidates[j].similarity
	})

	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]RankedFact, 0, len(candidates))
	for _, c := range candidates {
		if c.similarity < cfg.MinSimilarity {
			continue
		}
		results = append(results, RankedFact{
			Fact:       c.fact,
			Similarity: c.similarity,
			Rank:       len(results) + 1,
		})
	}

	logging.EmbeddingDebug("Ranked %d/%d facts above threshold %.2f", len(results), len(snap.Facts), cfg.MinSimilarity)

	// Nothing cleared the threshold: hand the drafter everything and let it
	// deflect, rather than drafting against an empty knowledge base.
	if len(results) == 0 {
		return allUnranked(snap.Facts)
	}

	return results
}

func (r *Ranker) embedQuery(ctx context.Context, engine embedding.Engine, text string) ([]float32, error) {
	if taskAware, ok := engine.(embedding.TaskAwareEngine); ok {
		return taskAware.EmbedWithTask(ctx, text, "RETRIEVAL_QUERY")
	}
	return engine.Embed(ctx, text)
}

func (r *Ranker) embedFact(ctx context.Context, engine embedding.Engine, text string) ([]float32, error) {
	r.mu.RLock()
	cached, ok := r.cache[text]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var vec []float32
	var err error
	if taskAware, ok := engine.(embedding.TaskAwareEngine); ok {
		vec, err = taskAware.EmbedWithTask(ctx, text, "RETRIEVAL_DOCUMENT")
	} else {
		vec, err = engine.Embed(ctx, text)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[text] = vec
	r.mu.Unlock()

	return vec, nil
}

func allUnranked(facts []Fact) []RankedFact {
	results := make([]RankedFact, len(facts))
	for i, f := range facts {
		results[i] = RankedFact{Fact: f, Rank: i + 1}
	}
	return results
}

// Facts extracts the plain facts from a ranked list.
func Facts(ranked []RankedFact) []Fact {
	facts := make([]Fact, len(ranked))
	for i, r := range ranked {
		facts[i] = r.Fact
	}
	return facts
}
