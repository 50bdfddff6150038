package trace

// MaxBaggageBytes caps the encoded size of a baggage header. Entries past the
// cap are evicted oldest-first at encode time.
const MaxBaggageBytes = 8 * 1024

type baggageEntry struct {
	key   string
	value string
}

// Baggage is an insertion-ordered set of unique key/value pairs propagated
// alongside a trace. It is a value type: Set returns a new Baggage backed by
// its own storage, so a child request's mutations never reach siblings or
// the parent.
type Baggage struct {
	entries []baggageEntry
}

// Set returns a copy of b with key set to value. A duplicate key keeps its
// original position and takes the new value (last write wins).
func (b Baggage) Set(key, value string) Baggage {
	if key == "" {
		return b
	}
	out := make([]baggageEntry, len(b.entries), len(b.entries)+1)
	copy(out, b.entries)
	for i := range out {
		if out[i].key == key {
			out[i].value = value
			return Baggage{entries: out}
		}
	}
	return Baggage{entries: append(out, baggageEntry{key: key, value: value})}
}

// Get returns the value for key and whether it is present. Keys are
// case-sensitive.
func (b Baggage) Get(key string) (string, bool) {
	for _, e := range b.entries {
		if e.key == key {
			return e.value, true
		}
	}
	return "", false
}

// Delete returns a copy of b without key.
func (b Baggage) Delete(key string) Baggage {
	out := make([]baggageEntry, 0, len(b.entries))
	for _, e := range b.entries {
		if e.key != key {
			out = append(out, e)
		}
	}
	return Baggage{entries: out}
}

// Len returns the number of entries.
func (b Baggage) Len() int {
	return len(b.entries)
}

// Walk calls fn for each entry in insertion order until fn returns false.
func (b Baggage) Walk(fn func(key, value string) bool) {
	for _, e := range b.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Equal reports whether two baggages hold the same entries in the same order.
func (b Baggage) Equal(other Baggage) bool {
	if len(b.entries) != len(other.entries) {
		return false
	}
	for i, e := range b.entries {
		if other.entries[i] != e {
			return false
		}
	}
	return true
}
