// Package ratelimit caps how much work a single role may dispatch in one
// orchestrator cycle, so one large tenant cannot starve others or blow
// through collaborator quotas.
package ratelimit

import "sync"

type Budget struct {
	mu         sync.Mutex
	maxSends   int
	maxSources int
	sends      map[string]int
	sources    map[string]int
}

func NewBudget(maxSends, maxSources int) *Budget {
	return &Budget{
		maxSends:   maxSends,
		maxSources: maxSources,
		sends:      make(map[string]int),
		sources:    make(map[string]int),
	}
}

// AllowSend consumes one outreach-send slot for the role, reporting false
// once the per-cycle ceiling is reached.
func (b *Budget) AllowSend(roleID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sends[roleID] >= b.maxSends {
		return false
	}
	b.sends[roleID]++
	return true
}

// AllowSource consumes one sourcing-call slot for the role.
func (b *Budget) AllowSource(roleID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sources[roleID] >= b.maxSources {
		return false
	}
	b.sources[roleID]++
	return true
}
