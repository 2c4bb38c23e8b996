package dokki

import (
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/drpcorg/dokki/rdx"
	"github.com/stretchr/testify/assert"
)

func TestChangeRoundTrip(t *testing.T) {
	doc := newDoc(alice)
	put(t, doc, "name", "Foo", "url", "https://example.com")
	tx := doc.Begin()
	assert.NoError(t, tx.Set("name", "Bar"))
	assert.NoError(t, tx.Set("n", -42))
	assert.NoError(t, tx.Set("pi", 3.25))
	assert.NoError(t, tx.Set("nil", nil))
	assert.NoError(t, tx.Delete("url"))
	ch, err := tx.Commit("rename")
	assert.NoError(t, err)

	dec, err := DecodeChange(ch.Raw)
	assert.NoError(t, err)
	assert.Equal(t, ch.Actor, dec.Actor)
	assert.Equal(t, ch.Start, dec.Start)
	assert.Equal(t, uint64(3), dec.Start)
	assert.True(t, ch.Time.Equal(dec.Time))
	assert.Equal(t, "rename", dec.Message)
	assert.Equal(t, ch.Hash, dec.Hash)
	assert.Equal(t, ch.Ops, dec.Ops)
	assert.Equal(t, []rdx.OpID{id(alice, 1), id(alice, 2)}, dec.Ops[0].Deps)
	assert.Equal(t, Delete, dec.Ops[4].Kind)
}

func TestChangeCorruption(t *testing.T) {
	doc := newDoc(alice)
	ch := put(t, doc, "k", "some value", "j", 7)
	for i := range ch.Raw {
		bad := append([]byte(nil), ch.Raw...)
		bad[i] ^= 0x20
		_, err := DecodeChange(bad)
		assert.ErrorIs(t, err, ErrHashMismatch, "byte %d", i)
		var de *DecodeError
		assert.True(t, errors.As(err, &de))
		assert.Equal(t, HashMismatch, de.Kind)
	}
}

func reseal(body []byte) []byte {
	sum := sha256.Sum256(body)
	return append(append([]byte(nil), body...), sum[:]...)
}

func TestChangeDecodeErrors(t *testing.T) {
	doc := newDoc(alice)
	ch := put(t, doc, "k", "v")

	_, err := DecodeChange(ch.Raw[:20])
	assert.ErrorIs(t, err, ErrMalformed)

	body := append([]byte(nil), ch.Raw[:len(ch.Raw)-HashLen]...)
	body[0] = 2
	_, err = DecodeChange(reseal(body))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	// properly sealed, yet promising ops it does not have
	hdr := append([]byte{ChangeFormat}, alice[:]...)
	hdr = append(hdr, 1, 5, 0, 0)
	_, err = DecodeChange(reseal(append(hdr, make([]byte, 40)...)))
	assert.ErrorIs(t, err, ErrMalformed)

	// no actor
	noActor := append([]byte(nil), ch.Raw[:len(ch.Raw)-HashLen]...)
	for i := 1; i <= rdx.ActorIDLen; i++ {
		noActor[i] = 0
	}
	_, err = DecodeChange(reseal(noActor))
	assert.ErrorIs(t, err, ErrMalformed)

	// trailing garbage after the ops
	trailing := append(append([]byte(nil), ch.Raw[:len(ch.Raw)-HashLen]...), 'x')
	_, err = DecodeChange(reseal(trailing))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeChangeChecks(t *testing.T) {
	_, err := EncodeChange(alice, 1, t0, "", nil)
	assert.Error(t, err)
	_, err = EncodeChange(alice, 1, t0, "", []Op{putOp(alice, 2, "x", 1)})
	var ee *EncodingError
	assert.True(t, errors.As(err, &ee))
	_, err = EncodeChange(alice, 1, t0, "", []Op{putOp(bob, 1, "x", 1)})
	assert.Error(t, err)

	ch, err := EncodeChange(alice, 1, t0.Add(1234567), "hi", []Op{putOp(alice, 1, "x", 1)})
	assert.NoError(t, err)
	assert.Equal(t, t0.Add(1000000).UnixNano(), ch.Time.UnixNano())
}

func TestEncodeOps(t *testing.T) {
	doc := newDoc(alice)
	c1 := put(t, doc, "a", 1, "b", 2)
	c2 := put(t, doc, "c", 3)
	ops := doc.Operations()

	changes, err := doc.EncodeOps(ops)
	assert.NoError(t, err)
	assert.Len(t, changes, 2)
	assert.Equal(t, c1.Raw, changes[0].Raw)
	assert.Equal(t, c2.Raw, changes[1].Raw)

	// a tail of a stored change is re-encoded
	changes, err = doc.EncodeOps(ops[1:])
	assert.NoError(t, err)
	assert.Len(t, changes, 2)
	assert.Equal(t, uint64(2), changes[0].Start)
	assert.NotEqual(t, c1.Hash, changes[0].Hash)
	dec, err := DecodeChange(changes[0].Raw)
	assert.NoError(t, err)
	assert.Equal(t, ops[1:2], dec.Ops)

	_, err = doc.EncodeOps([]Op{ops[0], ops[2]})
	var ee *EncodingError
	assert.True(t, errors.As(err, &ee))

	// several actors give several changes
	other := newDoc(bob)
	assert.NoError(t, other.ApplyChanges(c1, c2))
	mine := put(t, other, "a", 10)
	changes, err = other.ChangesSince(nil)
	assert.NoError(t, err)
	assert.Len(t, changes, 3)
	assert.Equal(t, mine.Raw, changes[2].Raw)

	// ops this document never stored are stamped with the current time
	opts := testOptions()
	later := t0.Add(time.Hour)
	opts.Now = func() time.Time { return later }
	fresh := New(carol, opts)
	changes, err = fresh.EncodeOps([]Op{putOp(alice, 1, "x", 1)})
	assert.NoError(t, err)
	if assert.Len(t, changes, 1) {
		assert.True(t, later.Equal(changes[0].Time))
		assert.Equal(t, "", changes[0].Message)
	}
}
