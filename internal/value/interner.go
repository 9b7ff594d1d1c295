package value

import "sync"

// Interner is the process-wide append-only string store backing interned
// Value strings. A single RWMutex is enough: interning happens at
// parse/compile time, which is far colder than VM execution, so lock
// contention is not on the render hot path.
type Interner struct {
	mu    sync.RWMutex
	table map[string]*String
}

func NewInterner() *Interner {
	return &Interner{table: make(map[string]*String)}
}

// Intern returns the canonical *String for s, creating and storing one on
// first use. Two interned strings for the same text are pointer-identical,
// but String equality never depends on that — Equal compares text.
func (in *Interner) Intern(s string) *String {
	in.mu.RLock()
	if v, ok := in.table[s]; ok {
		in.mu.RUnlock()
		return v
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if v, ok := in.table[s]; ok {
		return v
	}
	v := &String{s: s, interned: true}
	in.table[s] = v
	return v
}

func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.table)
}
