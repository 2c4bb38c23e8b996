package dokki

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/drpcorg/dokki/rdx"
	"github.com/drpcorg/dokki/utils"
	"github.com/stretchr/testify/assert"
)

var (
	alice = rdx.ActorID{0xa}
	bob   = rdx.ActorID{0xb}
	carol = rdx.ActorID{0xc}
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		Logger: utils.NewDefaultLogger(slog.LevelError),
		Now:    func() time.Time { return t0 },
	}
}

func newDoc(actor rdx.ActorID) *Document {
	return New(actor, testOptions())
}

// put commits key/value pairs as one change.
func put(t *testing.T, doc *Document, kv ...any) *Change {
	tx := doc.Begin()
	for i := 0; i+1 < len(kv); i += 2 {
		assert.NoError(t, tx.Set(kv[i].(string), kv[i+1]))
	}
	ch, err := tx.Commit("")
	assert.NoError(t, err)
	return ch
}

func del(t *testing.T, doc *Document, keys ...string) *Change {
	tx := doc.Begin()
	for _, key := range keys {
		assert.NoError(t, tx.Delete(key))
	}
	ch, err := tx.Commit("")
	assert.NoError(t, err)
	return ch
}

func TestClockAdvance(t *testing.T) {
	c := NewClock()
	assert.Equal(t, uint64(1), c.Next(alice))
	assert.NoError(t, c.Advance(alice, 1, 3))
	assert.Equal(t, uint64(4), c.Next(alice))

	err := c.Advance(alice, 5, 1)
	var ce *ClockError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, uint64(4), ce.Expected)
	assert.Equal(t, uint64(5), ce.Got)

	assert.Error(t, c.Advance(alice, 4, 0))
	assert.Error(t, c.Advance(bob, 0, 1))
	assert.NoError(t, c.Advance(bob, 1, 1))

	v := c.CurrentVersion()
	v.Set(alice, 100)
	assert.Equal(t, uint64(4), c.Next(alice), "CurrentVersion is a copy")
}

func TestClockDiff(t *testing.T) {
	c := NewClock()
	assert.NoError(t, c.Advance(bob, 1, 2))
	assert.NoError(t, c.Advance(alice, 1, 3))
	assert.Equal(t, []rdx.OpID{
		{Actor: alice, Counter: 3},
		{Actor: bob, Counter: 1},
		{Actor: bob, Counter: 2},
	}, c.Diff(rdx.VV{alice: 2}))
	assert.Empty(t, c.Diff(c.CurrentVersion()))
	assert.Len(t, c.Diff(nil), 5)
}
