package dokki

import (
	"slices"

	"github.com/drpcorg/dokki/rdx"
)

// Clock tracks the last counter seen from every actor. Counters are
// gapless, so the state vector is all it needs. Not goroutine-safe,
// the owning Document locks.
type Clock struct {
	vv rdx.VV
}

func NewClock() *Clock {
	return &Clock{vv: make(rdx.VV)}
}

// CurrentVersion is a copy of the state vector.
func (c *Clock) CurrentVersion() rdx.VV {
	return c.vv.Clone()
}

// Next is the counter the actor's next op gets.
func (c *Clock) Next(actor rdx.ActorID) uint64 {
	return c.vv[actor] + 1
}

func (c *Clock) Knows(id rdx.OpID) bool {
	return c.vv.Contains(id)
}

// Advance reserves count counters from start on. The run must
// directly follow the last known counter of the actor.
func (c *Clock) Advance(actor rdx.ActorID, start, count uint64) error {
	last := c.vv[actor]
	if start != last+1 || count == 0 || start+count-1 < start {
		return &ClockError{Actor: actor, Expected: last + 1, Got: start}
	}
	c.vv[actor] = start + count - 1
	return nil
}

// Diff lists every op id known here but not covered by since,
// by actor then counter.
func (c *Clock) Diff(since rdx.VV) (ids []rdx.OpID) {
	for _, last := range c.vv.IDs() {
		for n := since[last.Actor] + 1; n <= last.Counter; n++ {
			ids = append(ids, rdx.OpID{Actor: last.Actor, Counter: n})
		}
	}
	return
}

func (c *Clock) clone() *Clock {
	return &Clock{vv: c.vv.Clone()}
}

// sortIDs sorts in the log order (actor, counter).
func sortIDs(ids []rdx.OpID) {
	slices.SortFunc(ids, func(a, b rdx.OpID) int {
		if a.ActorLess(b) {
			return -1
		} else if b.ActorLess(a) {
			return 1
		}
		return 0
	})
}
