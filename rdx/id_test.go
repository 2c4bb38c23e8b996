package rdx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOpID(t *testing.T) {
	actor := NewActorID()
	ids := []OpID{
		{actor, 1},
		{actor, 0xffff},
		{ActorID0, 7},
		{actor, ^uint64(0) >> 1},
	}
	for _, id := range ids {
		str := id.String()
		id2, err := ParseOpID(str)
		assert.NoError(t, err)
		assert.Equal(t, id, id2)
	}
	_, err := ParseOpID("12")
	assert.ErrorIs(t, err, ErrBadOpID)
	_, err = ParseOpID("12@beef")
	assert.ErrorIs(t, err, ErrBadActorID)
}

func TestOpIDBytes(t *testing.T) {
	actor := NewActorID()
	id := NewOpID(actor, 0x1234)
	by := id.Bytes()
	assert.Equal(t, ActorIDLen+2, len(by))
	id2, err := OpIDFromBytes(by)
	assert.NoError(t, err)
	assert.Equal(t, id, id2)

	_, err = OpIDFromBytes(by[:5])
	assert.ErrorIs(t, err, ErrBadOpID)
}

func TestOpIDOrder(t *testing.T) {
	a := ActorID{1}
	b := ActorID{2}
	// counter first, actor breaks ties
	assert.True(t, NewOpID(b, 1).Less(NewOpID(a, 2)))
	assert.True(t, NewOpID(a, 3).Less(NewOpID(b, 3)))
	assert.Equal(t, 0, NewOpID(a, 3).Compare(NewOpID(a, 3)))
	// log order: actor first
	assert.True(t, NewOpID(a, 2).ActorLess(NewOpID(b, 1)))
	assert.False(t, NewOpID(b, 1).ActorLess(NewOpID(a, 2)))
}

func TestActorID(t *testing.T) {
	a := NewActorID()
	b := NewActorID()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
	assert.True(t, ActorID0.IsZero())

	a2, err := ParseActorID(a.String())
	assert.NoError(t, err)
	assert.Equal(t, a, a2)
	assert.Equal(t, a.String()[:8], a.Short())

	_, err = ActorIDFromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadActorID)
}
