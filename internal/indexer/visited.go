package indexer

import (
	"sort"

	"transferScope/internal/model"
)

// VisitedSet holds identities already emitted in this run.
type VisitedSet struct {
	ids map[model.Identity]struct{}
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{ids: make(map[model.Identity]struct{})}
}

func (v *VisitedSet) Add(id model.Identity) {
	v.ids[id] = struct{}{}
}

func (v *VisitedSet) Contains(id model.Identity) bool {
	_, ok := v.ids[id]
	return ok
}

func (v *VisitedSet) Len() int {
	return len(v.ids)
}

// InBlock returns the identities recorded for block, ordered by position.
func (v *VisitedSet) InBlock(block uint64) []model.Identity {
	out := make([]model.Identity, 0)
	for id := range v.ids {
		if id.BlockNumber == block {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionIndex != out[j].TransactionIndex {
			return out[i].TransactionIndex < out[j].TransactionIndex
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out
}
