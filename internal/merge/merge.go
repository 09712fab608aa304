package merge

import (
	"slices"
	"strings"
	"sync"

	"github.com/nao1215/clinicscan/internal/model"
)

// Consolidator keeps the best record seen for each dedup key.
// It is safe for concurrent use; offers are serialized by a mutex.
type Consolidator struct {
	mu   sync.Mutex
	best map[model.DedupKey]*model.Record
}

// NewConsolidator creates an empty Consolidator.
func NewConsolidator() *Consolidator {
	return &Consolidator{
		best: make(map[model.DedupKey]*model.Record),
	}
}

// Offer folds a record into the result set.
// It returns true when the record became the one held for its key.
// Nil records are ignored.
func (c *Consolidator) Offer(rec *model.Record) bool {
	if rec == nil {
		return false
	}
	key := rec.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.best[key]
	if ok && !Better(rec, existing) {
		return false
	}
	c.best[key] = rec
	return true
}

// Get returns a copy of the record held for a key.
func (c *Consolidator) Get(key model.DedupKey) (*model.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.best[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Len returns the number of distinct keys.
func (c *Consolidator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.best)
}

// Records returns copies of the held records ordered by dedup key.
func (c *Consolidator) Records() []*model.Record {
	c.mu.Lock()
	records := make([]*model.Record, 0, len(c.best))
	for _, rec := range c.best {
		records = append(records, rec.Clone())
	}
	c.mu.Unlock()

	slices.SortFunc(records, func(a, b *model.Record) int {
		ka, kb := a.Key(), b.Key()
		switch {
		case ka.Less(kb):
			return -1
		case kb.Less(ka):
			return 1
		default:
			return 0
		}
	})
	return records
}

// Better reports whether candidate should replace existing.
//
// The higher completeness score wins. On equal scores the more recent
// capture wins. Remaining ties are broken on the record content so the
// outcome never depends on arrival order.
func Better(candidate, existing *model.Record) bool {
	if cs, es := candidate.Score(), existing.Score(); cs != es {
		return cs > es
	}
	if candidate.CaptureTimestamp != existing.CaptureTimestamp {
		return candidate.CaptureTimestamp > existing.CaptureTimestamp
	}
	return contentKey(candidate) < contentKey(existing)
}

// contentKey flattens a record for the final tie-break.
func contentKey(r *model.Record) string {
	return strings.Join([]string{
		r.SourceAddress, r.Name, r.Address, r.Email, r.Phone,
		strings.Join(r.Services, "\x1f"),
	}, "\x00")
}

// Merge consolidates several record sets into one, ordered by dedup key.
func Merge(sets ...[]*model.Record) []*model.Record {
	c := NewConsolidator()
	for _, set := range sets {
		for _, rec := range set {
			c.Offer(rec)
		}
	}
	return c.Records()
}
