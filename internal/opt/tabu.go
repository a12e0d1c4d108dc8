package opt

import "fmt"

// DefaultTenure is the number of decays a recorded key survives.
const DefaultTenure = 15

// Key identifies a move attribute. Relocate families store (customer, route
// index); Exchange and TwoOpt store an ordered customer pair.
type Key struct {
	A, B int
}

func (k Key) String() string { return fmt.Sprintf("(%d,%d)", k.A, k.B) }

// pairKey orders two customers so (a,b) and (b,a) collide.
func pairKey(a, b int) Key {
	if a > b {
		a, b = b, a
	}
	return Key{A: a, B: b}
}

// TabuList is a tenured set of keys. The zero value is not usable; use
// NewTabuList. Concurrent readers are fine; writes need exclusive access,
// which the engine only takes between iterations.
type TabuList struct {
	tenure  int
	entries map[Key]int
}

func NewTabuList(tenure int) *TabuList {
	if tenure <= 0 {
		tenure = DefaultTenure
	}
	return &TabuList{tenure: tenure, entries: map[Key]int{}}
}

// Record inserts k, or refreshes it to full tenure.
func (t *TabuList) Record(k Key) { t.entries[k] = t.tenure }

// Contains is nil-safe so moves can run without memory.
func (t *TabuList) Contains(k Key) bool {
	if t == nil {
		return false
	}
	_, ok := t.entries[k]
	return ok
}

// Decay ages every entry by one and evicts those that reach zero.
func (t *TabuList) Decay() {
	for k, left := range t.entries {
		if left <= 1 {
			delete(t.entries, k)
			continue
		}
		t.entries[k] = left - 1
	}
}

// Merge adds the keys of other that t does not already hold. Existing
// entries keep their remaining tenure.
func (t *TabuList) Merge(other *TabuList) {
	if other == nil {
		return
	}
	for k, left := range other.entries {
		if _, ok := t.entries[k]; !ok {
			t.entries[k] = left
		}
	}
}

func (t *TabuList) Clone() *TabuList {
	out := &TabuList{tenure: t.tenure, entries: make(map[Key]int, len(t.entries))}
	for k, v := range t.entries {
		out.entries[k] = v
	}
	return out
}

func (t *TabuList) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Remaining reports the tenure left for k, or 0 when k is absent.
func (t *TabuList) Remaining(k Key) int { return t.entries[k] }

// TabuMemory keeps one independent list per move family.
type TabuMemory struct {
	lists [numFamilies]*TabuList
}

func NewTabuMemory(tenure int) *TabuMemory {
	m := &TabuMemory{}
	for i := range m.lists {
		m.lists[i] = NewTabuList(tenure)
	}
	return m
}

func (m *TabuMemory) List(f Family) *TabuList { return m.lists[f] }

// Decay ages all four lists once.
func (m *TabuMemory) Decay() {
	for _, l := range m.lists {
		l.Decay()
	}
}

// Sizes returns the entry count per family, keyed by family name.
func (m *TabuMemory) Sizes() map[string]int {
	out := make(map[string]int, numFamilies)
	for i, l := range m.lists {
		out[Family(i).String()] = l.Len()
	}
	return out
}
