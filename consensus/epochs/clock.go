// Package epochs runs the observation protocol: it keeps the epoch clock, prescribes
// weighted observers for each epoch, records their reports and distributes rewards once
// per epoch.
package epochs

import (
	"sort"

	"arnsmachine/arnsmachine"
)

// Window is one epoch's position on the height axis.
type Window struct {
	Index              int64 `json:"epochIndex"`
	Start              int64 `json:"epochStartHeight"`
	End                int64 `json:"epochEndHeight"`
	DistributionHeight int64 `json:"epochDistributionHeight"`
}

// WindowAt returns the epoch containing height. Heights before epoch zero map to epoch zero.
func WindowAt(c *arnsmachine.Constants, height int64) Window {
	e := c.Epochs
	var idx int64
	if height > e.ZeroStartHeight && e.Length > 0 {
		idx = (height - e.ZeroStartHeight) / e.Length
	}
	return WindowFor(c, idx)
}

// WindowFor returns the epoch with the given index.
func WindowFor(c *arnsmachine.Constants, idx int64) Window {
	e := c.Epochs
	start := e.ZeroStartHeight + idx*e.Length
	end := start + e.Length - 1
	return Window{Index: idx, Start: start, End: end, DistributionHeight: end + e.DistributionDelay}
}

// State is the epoch clock plus the per-epoch observer, observation and distribution
// records. Observers and observations are kept for the current and previous epoch only.
type State struct {
	Current       Window                  `json:"current"`
	Prescribed    map[int64][]Observer    `json:"prescribedObservers"`
	Observations  map[int64]*Observations `json:"observations"`
	Distributions map[int64]*Distribution `json:"distributions"`
}

// NewState starts the clock at epoch zero.
func NewState(c *arnsmachine.Constants) *State {
	return &State{
		Current:       WindowFor(c, 0),
		Prescribed:    map[int64][]Observer{},
		Observations:  map[int64]*Observations{},
		Distributions: map[int64]*Distribution{},
	}
}

func (s *State) Copy() *State {
	c := &State{
		Current:       s.Current,
		Prescribed:    make(map[int64][]Observer, len(s.Prescribed)),
		Observations:  make(map[int64]*Observations, len(s.Observations)),
		Distributions: make(map[int64]*Distribution, len(s.Distributions)),
	}
	// observer lists and distributions are never modified once stored
	for k, v := range s.Prescribed {
		c.Prescribed[k] = v
	}
	for k, v := range s.Distributions {
		c.Distributions[k] = v
	}
	for k, v := range s.Observations {
		c.Observations[k] = v.copy()
	}
	return c
}

func sortedHeights[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *State) AppendTo(hs *arnsmachine.HashSeq) {
	hs.AppendAll(s.Current.Index, s.Current.Start, s.Current.End, s.Current.DistributionHeight)
	for _, start := range sortedHeights(s.Prescribed) {
		for _, o := range s.Prescribed[start] {
			hs.AppendAll(start, o.Gateway, o.ObserverWallet, o.NormalizedWeight)
		}
	}
	for _, start := range sortedHeights(s.Observations) {
		s.Observations[start].appendTo(hs, start)
	}
	for _, start := range sortedHeights(s.Distributions) {
		d := s.Distributions[start]
		hs.AppendAll(start, d.TotalEligibleRewards, d.TotalDistributed, d.DistributedAt)
	}
}

// PrescribedFor returns the observers of the epoch starting at start.
func (s *State) PrescribedFor(start int64) []Observer {
	return s.Prescribed[start]
}

// ObserverFor finds wallet in the current epoch's prescribed observers.
func (s *State) ObserverFor(wallet arnsmachine.Account) (Observer, bool) {
	for _, o := range s.Prescribed[s.Current.Start] {
		if o.ObserverWallet == wallet {
			return o, true
		}
	}
	return Observer{}, false
}

func (s *State) prune(c *arnsmachine.Constants) {
	previous := s.Current.Start - c.Epochs.Length
	for _, start := range sortedHeights(s.Prescribed) {
		if start != s.Current.Start && start != previous {
			delete(s.Prescribed, start)
		}
	}
	for _, start := range sortedHeights(s.Observations) {
		if start != s.Current.Start && start != previous {
			delete(s.Observations, start)
		}
	}
}
