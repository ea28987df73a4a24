package dispatch

// seenSet is a bounded insertion-ordered set of trade ids already dispatched
// for one (strategy, subscriber) pair. When full, the oldest entry is
// evicted; the ledger upsert absorbs the redundant resubmission that a
// forgotten id causes.
type seenSet struct {
	capacity int
	order    []int64
	items    map[int64]struct{}
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 512
	}
	return &seenSet{
		capacity: capacity,
		items:    make(map[int64]struct{}, capacity),
	}
}

func (s *seenSet) Has(id int64) bool {
	_, ok := s.items[id]
	return ok
}

func (s *seenSet) Add(id int64) {
	if s.Has(id) {
		return
	}
	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.items, oldest)
	}
	s.order = append(s.order, id)
	s.items[id] = struct{}{}
}

func (s *seenSet) Len() int {
	return len(s.order)
}
