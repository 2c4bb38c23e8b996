package dokki

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/drpcorg/dokki/rdx"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type mergeStats struct {
	applied   atomic.Uint64
	duplicate atomic.Uint64
	buffered  atomic.Uint64
	rejected  atomic.Uint64
	evicted   atomic.Uint64
}

// pendingChange waits in the buffer for the op it misses.
type pendingChange struct {
	change  *Change
	since   time.Time
	missing rdx.OpID
	// reason is set when the change is given up on; settled when it
	// left the buffer because it merged
	reason  string
	settled bool
}

// pendingSet holds buffered changes by hash in arrival order. Lookups
// go through Peek and Contains so the order never changes; once full,
// adding a change evicts the oldest one.
type pendingSet struct {
	lru     *simplelru.LRU[[HashLen]byte, *pendingChange]
	dropped []*pendingChange
}

func newPendingSet(limit int) *pendingSet {
	ps := &pendingSet{}
	lru, err := simplelru.NewLRU[[HashLen]byte, *pendingChange](limit, ps.evicted)
	if err != nil {
		panic(err) // limit is positive after SetDefaults
	}
	ps.lru = lru
	return ps
}

func (ps *pendingSet) evicted(_ [HashLen]byte, pc *pendingChange) {
	if pc.settled {
		return
	}
	if pc.reason == "" {
		pc.reason = "evicted"
	}
	ps.dropped = append(ps.dropped, pc)
}

func (ps *pendingSet) len() int {
	return ps.lru.Len()
}

func (ps *pendingSet) add(pc *pendingChange) bool {
	if ps.lru.Contains(pc.change.Hash) {
		return false
	}
	ps.lru.Add(pc.change.Hash, pc)
	return true
}

// settle removes a change that is no longer waiting.
func (ps *pendingSet) settle(hash [HashLen]byte) {
	if pc, ok := ps.lru.Peek(hash); ok {
		pc.settled = true
		ps.lru.Remove(hash)
	}
}

// drop gives up on a buffered change.
func (ps *pendingSet) drop(hash [HashLen]byte, reason string) {
	if pc, ok := ps.lru.Peek(hash); ok {
		pc.reason = reason
		ps.lru.Remove(hash)
	}
}

// each visits buffered changes oldest first; f may remove the visited one.
func (ps *pendingSet) each(f func(pc *pendingChange)) {
	for _, hash := range ps.lru.Keys() {
		if pc, ok := ps.lru.Peek(hash); ok {
			f(pc)
		}
	}
}

// takeDropped returns the changes given up on since the last call.
func (ps *pendingSet) takeDropped() []*pendingChange {
	dropped := ps.dropped
	ps.dropped = nil
	return dropped
}

type outcome int

const (
	applied outcome = iota
	duplicate
	missing
	rejected
)

// ApplyChanges merges remote changes. Ops already known are skipped,
// changes missing a dependency are buffered and retried whenever
// something lands. The returned error joins the rejected changes and
// buffered changes that were given up on, every other change is merged.
func (doc *Document) ApplyChanges(changes ...*Change) error {
	doc.lock.Lock()
	defer doc.lock.Unlock()
	return doc.applyChanges(changes)
}

// ApplyChangeBytes decodes and merges change blobs. A blob that fails
// to decode is rejected alone.
func (doc *Document) ApplyChangeBytes(blobs ...[]byte) error {
	var errs []error
	changes := make([]*Change, 0, len(blobs))
	for _, blob := range blobs {
		ch, err := DecodeChange(blob)
		if err != nil {
			doc.stats.rejected.Add(1)
			doc.opts.Logger.Warn("rejected change blob", "len", len(blob), "err", err)
			errs = append(errs, err)
			continue
		}
		changes = append(changes, ch)
	}
	doc.lock.Lock()
	defer doc.lock.Unlock()
	errs = append(errs, doc.applyChanges(changes))
	return errors.Join(errs...)
}

func (doc *Document) applyChanges(changes []*Change) error {
	errs := doc.expirePending()
	progress := false
	for _, ch := range changes {
		ch, err := doc.prepare(ch)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out, miss, err := doc.integrate(ch)
		switch out {
		case applied:
			progress = true
		case missing:
			pc := &pendingChange{change: ch, since: doc.opts.Now(), missing: miss}
			if !doc.pending.add(pc) {
				doc.stats.duplicate.Add(1)
				continue
			}
			doc.stats.buffered.Add(1)
			doc.opts.Logger.Debug("change buffered", "change", ch.ID(), "missing", miss)
			errs = append(errs, doc.gaveUp()...)
		case rejected:
			errs = append(errs, err)
		}
	}
	for progress {
		progress = false
		doc.pending.each(func(pc *pendingChange) {
			out, miss, err := doc.integrate(pc.change)
			switch out {
			case applied:
				progress = true
				doc.pending.settle(pc.change.Hash)
			case duplicate:
				doc.pending.settle(pc.change.Hash)
			case missing:
				pc.missing = miss
			case rejected:
				doc.pending.settle(pc.change.Hash)
				errs = append(errs, err)
			}
		})
	}
	return errors.Join(errs...)
}

// prepare checks a change and seals a copy of it if it came without
// its bytes. The caller's change is never modified.
func (doc *Document) prepare(ch *Change) (*Change, error) {
	if err := ch.check(); err != nil {
		doc.stats.rejected.Add(1)
		doc.opts.Logger.Warn("rejected change", "change", ch.ID(), "err", err)
		return nil, err
	}
	if ch.Raw != nil {
		return ch, nil
	}
	sealed := *ch
	sealed.seal()
	return &sealed, nil
}

// integrate appends the unknown tail of a checked, sealed change if
// all of its dependencies are known.
func (doc *Document) integrate(ch *Change) (out outcome, miss rdx.OpID, err error) {
	if _, ok := doc.log.hashes[ch.Hash]; ok {
		doc.stats.duplicate.Add(1)
		return duplicate, miss, nil
	}
	known := doc.log.clock.vv[ch.Actor]
	if ch.End() <= known {
		doc.stats.duplicate.Add(1)
		return duplicate, miss, nil
	}
	if ch.Start > known+1 {
		return missing, rdx.OpID{Actor: ch.Actor, Counter: known + 1}, nil
	}
	tail := ch.Ops[known+1-ch.Start:]
	for i := range tail {
		for _, dep := range tail[i].Deps {
			if dep.Actor == ch.Actor && dep.Counter < tail[i].ID.Counter {
				continue
			}
			if !doc.log.contains(dep) {
				return missing, dep, nil
			}
		}
	}
	meta := changeMeta{time: ch.Time, message: ch.Message}
	if len(tail) == len(ch.Ops) {
		meta.hash, meta.raw = ch.Hash, ch.Raw
	}
	if err = doc.log.appendBatch(tail, meta); err != nil {
		doc.stats.rejected.Add(1)
		doc.opts.Logger.Warn("rejected change", "change", ch.ID(), "err", err)
		return rejected, miss, err
	}
	doc.stats.applied.Add(1)
	doc.opts.Logger.Debug("change merged", "change", ch.ID(), "ops", len(tail))
	return applied, miss, nil
}

// gaveUp reports the buffered changes dropped since the last call.
func (doc *Document) gaveUp() (errs []error) {
	for _, pc := range doc.pending.takeDropped() {
		doc.stats.evicted.Add(1)
		doc.opts.Logger.Warn("buffered change "+pc.reason, "change", pc.change.ID(), "missing", pc.missing)
		errs = append(errs, &MissingDependencyError{Change: pc.change.Hash, Missing: pc.missing})
	}
	return
}

func (doc *Document) expirePending() []error {
	if doc.opts.PendingTimeout <= 0 || doc.pending.len() == 0 {
		return nil
	}
	deadline := doc.opts.Now().Add(-doc.opts.PendingTimeout)
	doc.pending.each(func(pc *pendingChange) {
		if pc.since.Before(deadline) {
			doc.pending.drop(pc.change.Hash, "timed out")
		}
	})
	return doc.gaveUp()
}

// Pending is the number of buffered changes.
func (doc *Document) Pending() int {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return doc.pending.len()
}

// DropPending gives up on every buffered change (at shutdown).
func (doc *Document) DropPending() error {
	doc.lock.Lock()
	defer doc.lock.Unlock()
	doc.pending.each(func(pc *pendingChange) {
		doc.pending.drop(pc.change.Hash, "dropped")
	})
	return errors.Join(doc.gaveUp()...)
}
