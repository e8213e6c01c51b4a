package aggregator

import "sync"

// periodTable is a mapping from key to a non-negative period in seconds. A
// key may be registered without appearing here, in which case it is only
// runnable via AggregateNow. Period zero means "every tick".
type periodTable struct {
	mu      sync.Mutex
	periods map[string]float64
}

func newPeriodTable() *periodTable {
	return &periodTable{periods: make(map[string]float64)}
}

// Set records seconds as key's period, rejecting negative periods.
func (p *periodTable) Set(key string, seconds float64) error {
	if key == "" {
		return EmptyKeyError{}
	}
	if seconds < 0 {
		return NegativePeriodError{Key: key}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.periods[key] = seconds
	return nil
}

// Get returns key's period and whether it is registered.
func (p *periodTable) Get(key string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	period, ok := p.periods[key]
	return period, ok
}

// Keys returns every periodic key, in no particular order.
func (p *periodTable) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.periods))
	for k := range p.periods {
		keys = append(keys, k)
	}
	return keys
}

// Clear empties the period table.
func (p *periodTable) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.periods = make(map[string]float64)
}
