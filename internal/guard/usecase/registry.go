package usecase

import (
	"sync"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
)

// ruleRegistry maps normalized resource keys to policy rules. Lookup is O(1).
// The registry is populated at startup and treated as read-only during
// evaluation; the lock exists for registration, not for evaluation ordering.
type ruleRegistry struct {
	mu    sync.RWMutex
	rules map[string]*guardDomain.PolicyRule
}

func newRuleRegistry() *ruleRegistry {
	return &ruleRegistry{
		rules: make(map[string]*guardDomain.PolicyRule),
	}
}

// get returns the rule for a normalized key, or ok=false when no policy is
// configured for the resource.
func (r *ruleRegistry) get(resourceKey string) (*guardDomain.PolicyRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[resourceKey]
	return rule, ok
}

// register stores a rule under its normalized key, last write wins.
func (r *ruleRegistry) register(resourceKey string, rule *guardDomain.PolicyRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[resourceKey] = rule
}

// size returns the number of registered rules.
func (r *ruleRegistry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}
