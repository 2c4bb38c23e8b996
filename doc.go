// Package dokki is a replicated key/value document. Replicas edit
// their copy in transactions, exchange the resulting changes (or
// whole updates) in any order and converge: concurrent writes to a
// key are resolved by op id, the highest one wins.
package dokki

import (
	"slices"
	"sync"

	"github.com/drpcorg/dokki/protocol"
	"github.com/drpcorg/dokki/rdx"
	"github.com/drpcorg/dokki/utils"
	"github.com/puzpuzpuz/xsync/v3"
)

type Document struct {
	actor rdx.ActorID
	opts  Options

	log     *opLog
	pending *pendingSet
	stats   mergeStats

	// queues to broadcast local changes
	hoses *xsync.MapOf[string, *utils.Queue[protocol.Records]]

	lock sync.RWMutex
}

// New makes an empty document written to as actor. A zero actor
// makes a read-only replica: it merges, but can not commit.
func New(actor rdx.ActorID, opts Options) *Document {
	opts.SetDefaults()
	return &Document{
		actor:   actor,
		opts:    opts,
		log:     newOpLog(),
		pending: newPendingSet(opts.MaxPending),
		hoses:   xsync.NewMapOf[string, *utils.Queue[protocol.Records]](),
	}
}

// FromMap makes a document holding the map as its first change.
func FromMap(actor rdx.ActorID, init map[string]any, opts Options) (*Document, error) {
	doc := New(actor, opts)
	_, err := doc.Transact("", func(tx *Txn) error {
		keys := make([]string, 0, len(init))
		for key := range init {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			if err := tx.Set(key, init[key]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Clone makes an independent replica with the same history, written
// to as actor. Buffered changes and hoses stay with the original.
func (doc *Document) Clone(actor rdx.ActorID) *Document {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	c := New(actor, doc.opts)
	c.log = doc.log.clone()
	return c
}

func (doc *Document) Actor() rdx.ActorID {
	return doc.actor
}

// Version is the state vector.
func (doc *Document) Version() rdx.VV {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return doc.log.clock.CurrentVersion()
}

// Heads are the ops nothing depends on yet, by actor.
func (doc *Document) Heads() []rdx.OpID {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return doc.log.headIDs()
}

// Diff lists the op ids known here and not covered by since.
func (doc *Document) Diff(since rdx.VV) []rdx.OpID {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return doc.log.clock.Diff(since)
}

func (doc *Document) Contains(id rdx.OpID) bool {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return doc.log.contains(id)
}

// Operations is the whole log in append order.
func (doc *Document) Operations() []Op {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return append([]Op(nil), doc.log.ops...)
}

// OperationsSince is the ops not covered by v, dependencies first.
func (doc *Document) OperationsSince(v rdx.VV) []Op {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return doc.log.operationsSince(v)
}

// Len is the number of ops in the log.
func (doc *Document) Len() int {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return len(doc.log.ops)
}
