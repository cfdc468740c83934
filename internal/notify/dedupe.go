package notify

// CycleDeduper collapses redundant notifications within a single drain
// cycle. The first occurrence of an identity wins; later occurrences are
// skipped. There is no cross-cycle memory: a fresh deduper is built per
// cycle, so an identity is free to fire again next cycle.
type CycleDeduper struct {
	seen map[string]struct{}
}

// NewCycleDeduper creates an empty deduper for one cycle.
func NewCycleDeduper() *CycleDeduper {
	return &CycleDeduper{seen: make(map[string]struct{})}
}

// Observe records the identity and reports whether this is its first
// occurrence in the cycle.
func (d *CycleDeduper) Observe(identity string) bool {
	if _, dup := d.seen[identity]; dup {
		return false
	}
	d.seen[identity] = struct{}{}
	return true
}
