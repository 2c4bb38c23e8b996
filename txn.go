package dokki

import (
	"context"

	"github.com/drpcorg/dokki/rdx"
)

type edit struct {
	kind  OpKind
	key   string
	value rdx.Value
}

// Txn accumulates edits; nothing touches the document until Commit.
// A Txn is not goroutine-safe.
type Txn struct {
	doc    *Document
	edits  []edit
	closed bool
}

func (doc *Document) Begin() *Txn {
	return &Txn{doc: doc}
}

func (tx *Txn) Put(key string, value rdx.Value) error {
	if tx.closed {
		return ErrTxnClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	if err := value.Check(); err != nil {
		return err
	}
	tx.edits = append(tx.edits, edit{kind: Put, key: key, value: value})
	return nil
}

// Set puts a native Go value (nil, bool, ints, floats, string).
func (tx *Txn) Set(key string, value any) error {
	val, err := rdx.FromNative(value)
	if err != nil {
		return err
	}
	return tx.Put(key, val)
}

func (tx *Txn) Delete(key string) error {
	if tx.closed {
		return ErrTxnClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	tx.edits = append(tx.edits, edit{kind: Delete, key: key})
	return nil
}

// Get sees the document with this transaction's edits applied.
func (tx *Txn) Get(key string) (rdx.Value, bool) {
	for i := len(tx.edits) - 1; i >= 0; i-- {
		if tx.edits[i].key == key {
			return tx.edits[i].value, tx.edits[i].kind == Put
		}
	}
	return tx.doc.Get(key)
}

// Len is the number of edits so far.
func (tx *Txn) Len() int {
	return len(tx.edits)
}

// Discard drops the edits. Safe to call after Commit.
func (tx *Txn) Discard() {
	tx.closed = true
	tx.edits = nil
}

// Commit appends the edits as one change of the local actor and
// hands it to the hoses. Nothing to commit gives a nil change.
func (tx *Txn) Commit(message string) (*Change, error) {
	if tx.closed {
		return nil, ErrTxnClosed
	}
	edits := tx.edits
	tx.Discard()
	if len(edits) == 0 {
		return nil, nil
	}
	ch, err := tx.doc.commit(edits, message)
	if err != nil || ch == nil {
		return nil, err
	}
	tx.doc.broadcast(context.Background(), ch.Raw)
	return ch, nil
}

// Transact runs fn in a transaction, committing if fn succeeds.
// The transaction is discarded on every other way out.
func (doc *Document) Transact(message string, fn func(tx *Txn) error) (*Change, error) {
	tx := doc.Begin()
	defer tx.Discard()
	if err := fn(tx); err != nil {
		return nil, err
	}
	return tx.Commit(message)
}

type survivor struct {
	id   rdx.OpID
	kind OpKind
}

func (doc *Document) commit(edits []edit, message string) (*Change, error) {
	if doc.actor.IsZero() {
		return nil, ErrNoActor
	}
	doc.lock.Lock()
	defer doc.lock.Unlock()
	start := doc.log.clock.Next(doc.actor)
	prev := rdx.OpID{Actor: doc.actor, Counter: start - 1}
	staged := make(map[string][]survivor)
	ops := make([]Op, 0, len(edits))
	for _, e := range edits {
		surv, ok := staged[e.key]
		if !ok {
			for _, i := range doc.log.proj.survivors[e.key] {
				surv = append(surv, survivor{doc.log.ops[i].ID, doc.log.ops[i].Kind})
			}
		}
		if e.kind == Delete && !anyPut(surv) {
			continue
		}
		op := Op{
			ID:    rdx.OpID{Actor: doc.actor, Counter: start + uint64(len(ops))},
			Kind:  e.kind,
			Key:   e.key,
			Value: e.value,
		}
		if !prev.IsZero() {
			op.Deps = append(op.Deps, prev)
		}
		for _, s := range surv {
			if s.id != prev {
				op.Deps = append(op.Deps, s.id)
			}
		}
		sortIDs(op.Deps)
		ops = append(ops, op)
		staged[e.key] = []survivor{{op.ID, op.Kind}}
		prev = op.ID
	}
	if len(ops) == 0 {
		return nil, nil
	}
	ch, err := EncodeChange(doc.actor, start, doc.opts.Now(), message, ops)
	if err != nil {
		return nil, err
	}
	err = doc.log.appendBatch(ch.Ops, changeMeta{
		time:    ch.Time,
		message: ch.Message,
		hash:    ch.Hash,
		raw:     ch.Raw,
	})
	if err != nil {
		return nil, err
	}
	doc.opts.Logger.Debug("committed", "change", ch.ID(), "ops", len(ops), "message", message)
	return ch, nil
}

func anyPut(surv []survivor) bool {
	for _, s := range surv {
		if s.kind == Put {
			return true
		}
	}
	return false
}
