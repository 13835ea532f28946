// Package knowledge holds the brand's curated facts and policy text.
// The triage policy reads immutable snapshots; edits come from the settings
// surface (YAML file, CLI) and never from the policy itself.
package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"inboxpilot/internal/logging"
)

// Fact is a single user-curated knowledge base entry.
type Fact struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// Snapshot is a point-in-time read of the knowledge base and policy.
// A snapshot is immutable; a race between a fact edit and a decision is
// acceptable and resolved by whichever snapshot the decision took.
type Snapshot struct {
	Facts  []Fact
	Policy string
}

// SerializeFacts returns the fact texts as one newline-joined block, the form
// the drafting prompt consumes.
func (s Snapshot) SerializeFacts() string {
	if len(s.Facts) == 0 {
		return ""
	}
	lines := make([]string, 0, len(s.Facts))
	for _, f := range s.Facts {
		lines = append(lines, "- "+f.Text)
	}
	return strings.Join(lines, "\n")
}

// Store is the mutable fact collection behind snapshots.
type Store struct {
	mu     sync.RWMutex
	facts  map[string]string // id -> text
	policy string
}

// NewStore creates an empty knowledge store.
func NewStore() *Store {
	return &Store{
		facts: make(map[string]string),
	}
}

// SetPolicy replaces the policy guideline text.
func (s *Store) SetPolicy(policy string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = policy
}

// Upsert adds or replaces a fact.
func (s *Store) Upsert(fact Fact) error {
	if strings.TrimSpace(fact.ID) == "" {
		return fmt.Errorf("fact id required")
	}
	if strings.TrimSpace(fact.Text) == "" {
		return fmt.Errorf("fact text required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[fact.ID] = fact.Text

	logging.KnowledgeDebug("Fact upserted: id=%s", fact.ID)
	return nil
}

// Delete removes a fact by id. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.facts, id)
}

// Len returns the number of facts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

// Snapshot returns an immutable point-in-time view.
// Facts are ordered by id so serialization is deterministic.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facts := make([]Fact, 0, len(s.facts))
	for id, text := range s.facts {
		facts = append(facts, Fact{ID: id, Text: text})
	}
	sort.Slice(facts, func(i, j int) bool {
		return facts[i].ID < facts[j].ID
	})

	return Snapshot{
		Facts:  facts,
		Policy: s.policy,
	}
}

// Replace swaps the entire fact set and policy in one step.
// Used by the file loader so readers never see a half-applied reload.
func (s *Store) Replace(facts []Fact, policy string) {
	next := make(map[string]string, len(facts))
	for _, f := range facts {
		if strings.TrimSpace(f.ID) == "" || strings.TrimSpace(f.Text) == "" {
			continue
		}
		next[f.ID] = f.Text
	}

	s.mu.Lock()
	s.facts = next
	s.policy = policy
	s.mu.Unlock()

	logging.Knowledge("Knowledge base replaced: facts=%d", len(next))
}
