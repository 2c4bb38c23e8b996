package dokki

import (
	"errors"
	"testing"

	"github.com/drpcorg/dokki/rdx"
	"github.com/stretchr/testify/assert"
)

func id(actor rdx.ActorID, counter uint64) rdx.OpID {
	return rdx.OpID{Actor: actor, Counter: counter}
}

func putOp(actor rdx.ActorID, counter uint64, key string, val int64, deps ...rdx.OpID) Op {
	if len(deps) == 0 {
		deps = nil
	}
	return Op{ID: id(actor, counter), Kind: Put, Key: key, Value: rdx.IntValue(val), Deps: deps}
}

func TestOpLogAppend(t *testing.T) {
	l := newOpLog()
	assert.NoError(t, l.append(putOp(alice, 1, "x", 1)))
	assert.True(t, l.contains(id(alice, 1)))

	err := l.append(putOp(alice, 3, "x", 3, id(alice, 1)))
	var ce *ClockError
	assert.True(t, errors.As(err, &ce))

	err = l.append(putOp(alice, 2, "x", 2, id(bob, 1)))
	var cause *CausalityError
	assert.True(t, errors.As(err, &cause))
	assert.Equal(t, id(bob, 1), cause.Missing)

	assert.NoError(t, l.append(putOp(bob, 1, "y", 1)))
	assert.NoError(t, l.append(putOp(alice, 2, "x", 2, id(alice, 1))))
	assert.Equal(t, []rdx.OpID{id(alice, 2), id(bob, 1)}, l.headIDs())
	assert.Equal(t, rdx.VV{alice: 2, bob: 1}, l.clock.CurrentVersion())
}

func TestOpLogBatchIsAtomic(t *testing.T) {
	l := newOpLog()
	assert.NoError(t, l.append(putOp(alice, 1, "x", 1)))
	err := l.appendBatch([]Op{
		putOp(alice, 2, "x", 2, id(alice, 1)),
		putOp(alice, 3, "y", 3, id(alice, 2), id(carol, 7)),
	}, changeMeta{})
	assert.Error(t, err)
	assert.Len(t, l.ops, 1)
	assert.Len(t, l.changes, 1)
	assert.Equal(t, uint64(2), l.clock.Next(alice))
	assert.Equal(t, rdx.IntValue(1), l.proj.view["x"])

	// deps inside the batch are fine
	assert.NoError(t, l.appendBatch([]Op{
		putOp(alice, 2, "x", 2, id(alice, 1)),
		putOp(alice, 3, "y", 3, id(alice, 2)),
	}, changeMeta{}))
	assert.Len(t, l.changes, 2)
	assert.Equal(t, 2, l.changes[1].count)
}

func TestOperationsSinceOrder(t *testing.T) {
	l := newOpLog()
	// bob's change lands first, but both are concurrent
	assert.NoError(t, l.append(putOp(bob, 1, "y", 1)))
	assert.NoError(t, l.append(putOp(alice, 1, "x", 1)))
	// carol overwrites both
	assert.NoError(t, l.append(putOp(carol, 1, "x", 2, id(alice, 1))))
	assert.NoError(t, l.append(putOp(carol, 2, "y", 2, id(bob, 1), id(carol, 1))))
	assert.NoError(t, l.append(putOp(alice, 2, "z", 2, id(alice, 1))))

	var ids []rdx.OpID
	for _, op := range l.operationsSince(nil) {
		ids = append(ids, op.ID)
	}
	assert.Equal(t, []rdx.OpID{
		id(alice, 1), id(alice, 2), id(bob, 1), id(carol, 1), id(carol, 2),
	}, ids)

	ids = ids[:0]
	for _, op := range l.operationsSince(rdx.VV{alice: 1, bob: 1}) {
		ids = append(ids, op.ID)
	}
	assert.Equal(t, []rdx.OpID{id(alice, 2), id(carol, 1), id(carol, 2)}, ids)
	assert.Empty(t, l.operationsSince(l.clock.CurrentVersion()))
}

func TestOperationsSinceDependencyFirst(t *testing.T) {
	l := newOpLog()
	assert.NoError(t, l.append(putOp(carol, 1, "x", 1)))
	assert.NoError(t, l.append(putOp(alice, 1, "x", 2, id(carol, 1))))
	ops := l.operationsSince(nil)
	assert.Equal(t, id(carol, 1), ops[0].ID)
	assert.Equal(t, id(alice, 1), ops[1].ID)
}

func TestVersionAt(t *testing.T) {
	l := newOpLog()
	assert.NoError(t, l.append(putOp(alice, 1, "x", 1)))
	assert.NoError(t, l.append(putOp(alice, 2, "y", 1, id(alice, 1))))
	assert.NoError(t, l.append(putOp(bob, 1, "x", 2, id(alice, 1))))
	assert.NoError(t, l.append(putOp(bob, 2, "q", 2, id(bob, 1))))

	vv, err := l.versionAt([]rdx.OpID{id(bob, 2)})
	assert.NoError(t, err)
	assert.Equal(t, rdx.VV{alice: 1, bob: 2}, vv)

	vv, err = l.versionAt(l.headIDs())
	assert.NoError(t, err)
	assert.Equal(t, l.clock.CurrentVersion(), vv)

	_, err = l.versionAt([]rdx.OpID{id(carol, 1)})
	assert.Error(t, err)
}
