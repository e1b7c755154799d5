package lock

import (
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// heldSet tracks the lock IDs this node believes it owns. Each add stamps the
// entry with a fresh generation so that a renewal pass can drop an entry it
// observed as lost without undoing a re-acquire that happened meanwhile.
type heldSet struct {
	entries *xsync.MapOf[string, uint64]
	seq     atomic.Uint64
}

type heldEntry struct {
	id         string
	generation uint64
}

func newHeldSet() *heldSet {
	return &heldSet{entries: xsync.NewMapOf[string, uint64]()}
}

func (s *heldSet) add(id string) uint64 {
	gen := s.seq.Add(1)
	s.entries.Store(id, gen)
	return gen
}

func (s *heldSet) remove(id string) bool {
	_, ok := s.entries.LoadAndDelete(id)
	return ok
}

// removeIfGeneration deletes id only when it still carries generation.
func (s *heldSet) removeIfGeneration(id string, generation uint64) bool {
	removed := false
	s.entries.Compute(id, func(current uint64, loaded bool) (uint64, bool) {
		if !loaded {
			return current, true
		}
		if current != generation {
			return current, false
		}
		removed = true
		return current, true
	})
	return removed
}

func (s *heldSet) contains(id string) bool {
	_, ok := s.entries.Load(id)
	return ok
}

func (s *heldSet) snapshot() []heldEntry {
	out := make([]heldEntry, 0, s.entries.Size())
	s.entries.Range(func(id string, gen uint64) bool {
		out = append(out, heldEntry{id: id, generation: gen})
		return true
	})
	return out
}

func (s *heldSet) ids() []string {
	out := make([]string, 0, s.entries.Size())
	s.entries.Range(func(id string, _ uint64) bool {
		out = append(out, id)
		return true
	})
	sort.Strings(out)
	return out
}

func (s *heldSet) size() int {
	return s.entries.Size()
}
