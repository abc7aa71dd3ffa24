package conductor

import (
	"sort"

	"arnsmachine/arnsmachine"
)

// SeenTxIDs holds the tx id of every action the ledger dispatched, applied or rejected, by
// height. Only the last DedupeWindow heights are kept.
type SeenTxIDs map[int64][]string

func (s SeenTxIDs) Copy() SeenTxIDs {
	c := make(SeenTxIDs, len(s))
	for h, ids := range s {
		// lists are replaced, never appended to in place
		c[h] = ids
	}
	return c
}

func (s SeenTxIDs) Has(height int64, txID string) bool {
	return arnsmachine.Contains(s[height], txID)
}

func (s SeenTxIDs) add(height int64, txID string) {
	ids := make([]string, 0, len(s[height])+1)
	s[height] = append(append(ids, s[height]...), txID)
}

// forget drops the heights that fell out of the window when height was ticked.
func (s SeenTxIDs) forget(height, window int64) {
	delete(s, height-window-1)
}

func (s SeenTxIDs) AppendTo(hs *arnsmachine.HashSeq) {
	heights := make([]int64, 0, len(s))
	for h := range s {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	for _, h := range heights {
		hs.AppendAll(h, s[h])
	}
}
