package channels

// Append returns a new list equal to prev with ch added at the end.
// prev is never modified, so snapshots handed to renderers stay stable.
func Append(prev []Channel, ch Channel) []Channel {
	next := make([]Channel, len(prev), len(prev)+1)
	copy(next, prev)
	return append(next, ch)
}

// Feed is the channel list of one mounted view: an initial snapshot plus the
// live creation events appended in arrival order. It does not deduplicate.
//
// Feed is not safe for concurrent use; the owner serializes access.
type Feed struct {
	items       []Channel
	present     bool
	provisional bool
	// live holds events that the next authoritative snapshot must be followed by.
	live []Channel
}

// Present reports whether a list (cached or fetched) is available.
func (f *Feed) Present() bool {
	return f.present
}

// Items returns the current list. The slice must not be modified.
func (f *Feed) Items() []Channel {
	return f.items
}

// Provisional shows a cached snapshot while the authoritative fetch is in flight.
// It is ignored once the authoritative list has landed.
func (f *Feed) Provisional(items []Channel) {
	if f.present && !f.provisional {
		return
	}
	f.items = concat(items, f.live)
	f.present = true
	f.provisional = true
}

// Replace installs the fetched list. Events received before it landed are
// appended after it in arrival order.
func (f *Feed) Replace(items []Channel) {
	f.items = concat(items, f.live)
	f.live = nil
	f.present = true
	f.provisional = false
}

// Apply merges one creation event.
func (f *Feed) Apply(ch Channel) {
	if !f.present || f.provisional {
		f.live = append(f.live, ch)
	}
	if f.present {
		f.items = Append(f.items, ch)
	}
}

// Reset drops everything, returning the feed to its pre-fetch state.
func (f *Feed) Reset() {
	*f = Feed{}
}

func concat(a, b []Channel) []Channel {
	out := make([]Channel, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
