package enrollment

import "sync"

// Pool is the set of students picked for the next batch enrollment. It keeps
// selection order and never holds an id twice.
type Pool struct {
	mu  sync.Mutex
	ids []string
}

// Toggle adds id when absent and removes it otherwise. It reports whether id
// is selected afterwards.
func (p *Pool) Toggle(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.ids {
		if cur == id {
			p.ids = append(p.ids[:i], p.ids[i+1:]...)
			return false
		}
	}
	p.ids = append(p.ids, id)
	return true
}

// SelectAll adds every id not selected yet.
func (p *Pool) SelectAll(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = uniq(append(p.ids, ids...))
}

// Contains reports whether id is selected.
func (p *Pool) Contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cur := range p.ids {
		if cur == id {
			return true
		}
	}
	return false
}

// IDs returns the selection in order.
func (p *Pool) IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

// Clear empties the pool.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = nil
}

// drop removes ids from the selection.
func (p *Pool) drop(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	gone := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
	}
	kept := p.ids[:0]
	for _, id := range p.ids {
		if _, ok := gone[id]; !ok {
			kept = append(kept, id)
		}
	}
	p.ids = kept
}
