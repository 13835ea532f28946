package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeEngine returns canned vectors per text. Unknown texts error.
type fakeEngine struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	failAll bool
}

func (e *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failAll {
		return nil, errors.New("engine down")
	}
	vec, ok := e.vectors[text]
	if !ok {
		return nil, errors.New("no vector for text")
	}
	return vec, nil
}

func (e *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *fakeEngine) Dimensions() int { return 3 }
func (e *fakeEngine) Name() string    { return "fake" }

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestRankerOrdersByRelevance(t *testing.T) {
	engine := &fakeEngine{vectors: map[string][]float32{
		"what is the price": {1, 0, 0},
		"price fact":        {0.9, 0.1, 0}, // close to the query
		"hours fact":        {0, 1, 0},     // orthogonal
		"shipping fact":     {0.5, 0.5, 0}, // in between
	}}

	ranker := NewRanker(engine)
	ranker.SetConfig(RankerConfig{TopK: 2, MinSimilarity: 0.1})

	snap := Snapshot{Facts: []Fact{
		{ID: "hours", Text: "hours fact"},
		{ID: "price", Text: "price fact"},
		{ID: "shipping", Text: "shipping fact"},
	}}

	ranked := ranker.Rank(context.Background(), "what is the price", snap)
	if len(ranked) != 2 {
		t.Fatalf("got %d facts, want top 2", len(ranked))
	}
	if ranked[0].Fact.ID != "price" {
		t.Errorf("top fact = %s, want price", ranked[0].Fact.ID)
	}
	if ranked[1].Fact.ID != "shipping" {
		t.Errorf("second fact = %s, want shipping", ranked[1].Fact.ID)
	}
	if ranked[0].Rank != 1 || ranked[1].Rank != 2 {
		t.Errorf("ranks = %d, %d", ranked[0].Rank, ranked[1].Rank)
	}
	if ranked[0].Similarity <= ranked[1].Similarity {
		t.Error("similarities not descending")
	}
}

func TestRankerDegradesToAllFactsOnFailure(t *testing.T) {
	engine := &fakeEngine{failAll: true}
	ranker := NewRanker(engine)

	snap := Snapshot{Facts: []Fact{
		{ID: "a", Text: "fact a"},
		{ID: "b", Text: "fact b"},
	}}

	ranked := ranker.Rank(context.Background(), "query", snap)
	if len(ranked) != len(snap.Facts) {
		t.Errorf("degraded ranking dropped facts: got %d, want %d", len(ranked), len(snap.Facts))
	}
}

func TestRankerNilEngineReturnsAllFacts(t *testing.T) {
	ranker := NewRanker(nil)

	snap := Snapshot{Facts: []Fact{{ID: "a", Text: "fact a"}}}
	ranked := ranker.Rank(context.Background(), "query", snap)
	if len(ranked) != 1 {
		t.Fatalf("got %d facts, want 1", len(ranked))
	}
	if ranked[0].Similarity != 0 {
		t.Error("unranked fact carries a similarity score")
	}
}

func TestRankerBelowThresholdFallsBackToAllFacts(t *testing.T) {
	engine := &fakeEngine{vectors: map[string][]float32{
		"query":  {1, 0, 0},
		"fact a": {0, 1, 0},
		"fact b": {0, 0, 1},
	}}
	ranker := NewRanker(engine)
	ranker.SetConfig(RankerConfig{TopK: 5, MinSimilarity: 0.5})

	snap := Snapshot{Facts: []Fact{
		{ID: "a", Text: "fact a"},
		{ID: "b", Text: "fact b"},
	}}

	ranked := ranker.Rank(context.Background(), "query", snap)
	if len(ranked) != len(snap.Facts) {
		t.Errorf("got %d facts, want all %d back", len(ranked), len(snap.Facts))
	}
}

func TestRankerCachesFactEmbeddings(t *testing.T) {
	engine := &fakeEngine{vectors: map[string][]float32{
		"query":  {1, 0, 0},
		"fact a": {1, 0, 0},
	}}
	ranker := NewRanker(engine)
	ranker.SetConfig(RankerConfig{TopK: 5, MinSimilarity: 0.1})

	snap := Snapshot{Facts: []Fact{{ID: "a", Text: "fact a"}}}

	ranker.Rank(context.Background(), "query", snap)
	first := engine.callCount() // query + fact

	ranker.Rank(context.Background(), "query", snap)
	second := engine.callCount()

	// Second pass re-embeds only the query; the fact comes from cache.
	if second-first != 1 {
		t.Errorf("second rank made %d engine calls, want 1", second-first)
	}
}

func TestFactsExtractsPlainFacts(t *testing.T) {
	ranked := []RankedFact{
		{Fact: Fact{ID: "a", Text: "x"}, Rank: 1},
		{Fact: Fact{ID: "b", Text: "y"}, Rank: 2},
	}
	facts := Facts(ranked)
	if len(facts) != 2 || facts[0].ID != "a" || facts[1].ID != "b" {
		t.Errorf("unexpected facts: %+v", facts)
	}
}
