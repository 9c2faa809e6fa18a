package field

// Swap exchanges the contents of two fields sharing one query store and
// writes both query slots in a single change. It returns the values now
// stored for a and b.
func Swap(a, b *Controller) (string, string) {
	if a == b {
		v := a.query.Get(a.slot)
		return v, v
	}

	first, second := a, b
	if second.slot < first.slot {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()

	a.rawText, b.rawText = b.rawText, a.rawText
	a.selected, b.selected = b.selected, a.selected
	a.resolved, b.resolved = b.resolved, a.resolved
	a.inflight, b.inflight = b.inflight, a.inflight
	if a.inflight != nil {
		a.inflight.owner.Store(a)
	}
	if b.inflight != nil {
		b.inflight.owner.Store(b)
	}

	aVal := a.query.Get(a.slot)
	bVal := b.query.Get(b.slot)
	if aVal != bVal {
		a.ignoreSync = true
		b.ignoreSync = true
	}

	second.mu.Unlock()
	first.mu.Unlock()

	a.query.SetValues(map[string]string{a.slot: bVal, b.slot: aVal})
	return bVal, aVal
}
