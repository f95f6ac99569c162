// Package completion implements the round-robin completion-model rotator
// (C12) and the client that wraps it with per-model circuit breakers
// (C13), grounded on ai/chain_client.go's multi-provider failover
// generalized to model rotation, and on
// original_source/routing/openrouter/models.py's ModelRotator.
package completion

import (
	"sync"
	"time"
)

// Model is a single rotation candidate.
type Model struct {
	ID       string
	Name     string
	Context  int
	Strength string
}

// DefaultModels mirrors the free-tier model roster in
// original_source/routing/openrouter/models.py.
var DefaultModels = []Model{
	{ID: "deepseek/deepseek-r1-0528:free", Name: "DeepSeek R1 0528", Context: 164_000, Strength: "reasoning"},
	{ID: "nvidia/nemotron-3-nano-30b-a3b:free", Name: "NVIDIA Nemotron 3 Nano", Context: 256_000, Strength: "agentic"},
	{ID: "openai/gpt-oss-120b:free", Name: "GPT-OSS 120B", Context: 131_000, Strength: "reasoning"},
	{ID: "meta-llama/llama-3.3-70b-instruct:free", Name: "Llama 3.3 70B", Context: 131_000, Strength: "general"},
	{ID: "qwen/qwen3-coder-480b-a35b:free", Name: "Qwen3 Coder 480B", Context: 262_000, Strength: "coding"},
	{ID: "nous/hermes-3-405b:free", Name: "Hermes 3 405B", Context: 131_000, Strength: "complex"},
	{ID: "z.ai/glm-4.5-air:free", Name: "GLM-4.5 Air", Context: 131_000, Strength: "multilingual"},
}

// WaitHook is invoked when every model is rate-limited, before the
// exclusion set is cleared. Production code passes a real sleep; tests
// pass a no-op or a recording stub.
type WaitHook func(d time.Duration)

// Rotator is C12: round-robin selection over a candidate pool with
// per-entry rate-limit exclusion and strength-tag preference (spec §4.10).
// Its exclusion set and index are single-writer, guarded by a mutex.
type Rotator struct {
	mu          sync.Mutex
	models      []Model
	index       int
	rateLimited map[string]struct{}
	wait        WaitHook
}

func NewRotator(models []Model, wait WaitHook) *Rotator {
	if len(models) == 0 {
		models = DefaultModels
	}
	if wait == nil {
		wait = func(d time.Duration) { time.Sleep(d) }
	}
	return &Rotator{
		models:      models,
		rateLimited: make(map[string]struct{}),
		wait:        wait,
	}
}

// Next returns the next model id for taskType, excluding rate-limited
// candidates and preferring a strength-tag match when one remains. If
// every model is excluded, it invokes the wait hook for 60s, clears the
// exclusion set, and proceeds as if nothing were excluded.
func (r *Rotator) Next(taskType string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.filterExcludedLocked()
	if len(candidates) == 0 {
		r.mu.Unlock()
		r.wait(60 * time.Second)
		r.mu.Lock()
		r.rateLimited = make(map[string]struct{})
		candidates = r.models
	}

	if taskType != "" {
		if preferred := filterByStrength(candidates, taskType); len(preferred) > 0 {
			candidates = preferred
		}
	}

	model := candidates[r.index%len(candidates)]
	r.index++
	return model.ID
}

func (r *Rotator) filterExcludedLocked() []Model {
	candidates := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		if _, excluded := r.rateLimited[m.ID]; !excluded {
			candidates = append(candidates, m)
		}
	}
	return candidates
}

func filterByStrength(models []Model, strength string) []Model {
	var matched []Model
	for _, m := range models {
		if m.Strength == strength {
			matched = append(matched, m)
		}
	}
	return matched
}

// MarkRateLimited excludes modelID from rotation until the exclusion set
// is next cleared.
func (r *Rotator) MarkRateLimited(modelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimited[modelID] = struct{}{}
}
