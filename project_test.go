package dokki

import (
	"encoding/json"
	"testing"

	"github.com/drpcorg/dokki/rdx"
	"github.com/stretchr/testify/assert"
)

func TestProjectConcurrentSameKey(t *testing.T) {
	a := newDoc(alice)
	b := newDoc(bob)
	ca := put(t, a, "title", "from alice")
	cb := put(t, b, "title", "from bob")

	assert.NoError(t, a.ApplyChanges(cb))
	assert.NoError(t, b.ApplyChanges(ca))

	// same counter, bob's actor id is higher
	val, ok := a.Get("title")
	assert.True(t, ok)
	assert.Equal(t, rdx.StringValue("from bob"), val)
	assert.Equal(t, a.Project(), b.Project())
	assert.Equal(t, a.Digest(), b.Digest())
	assert.Equal(t, []rdx.Value{
		rdx.StringValue("from bob"),
		rdx.StringValue("from alice"),
	}, a.Conflicts("title"))

	// an overwrite that saw both resolves the conflict
	put(t, a, "title", "merged")
	assert.Equal(t, []rdx.Value{rdx.StringValue("merged")}, a.Conflicts("title"))
	assert.Nil(t, a.Conflicts("nope"))
}

func TestProjectHigherCounterWins(t *testing.T) {
	a := newDoc(alice)
	b := newDoc(bob)
	put(t, a, "k", 1)
	put(t, a, "k", 2)       // 2@alice
	cb := put(t, b, "k", 3) // 1@bob
	changes, err := a.ChangesSince(nil)
	assert.NoError(t, err)
	assert.NoError(t, b.ApplyChanges(changes...))
	assert.NoError(t, a.ApplyChanges(cb))

	val, _ := b.Get("k")
	assert.Equal(t, rdx.IntValue(2), val)
	assert.Equal(t, a.Project(), b.Project())
}

func TestProjectDeleteConflict(t *testing.T) {
	a := newDoc(alice)
	put(t, a, "k", "v")
	b := a.Clone(bob)

	da := del(t, a, "k")      // 2@alice
	pb := put(t, b, "k", "w") // 1@bob, loses to the delete
	assert.NoError(t, a.ApplyChanges(pb))
	assert.NoError(t, b.ApplyChanges(da))

	_, ok := a.Get("k")
	assert.False(t, ok)
	assert.Equal(t, a.Project(), b.Project())
	assert.Empty(t, b.Keys())

	// deleting again is not a no-op: bob's put still survives
	dd := del(t, b, "k")
	assert.NotNil(t, dd)
	assert.NoError(t, a.ApplyChanges(dd))
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestReplayAgrees(t *testing.T) {
	a := newDoc(alice)
	b := newDoc(bob)
	c := newDoc(carol)
	put(t, a, "x", 1, "y", 2)
	put(t, b, "x", 10, "z", 3)
	put(t, c, "y", 20)
	all := []*Document{a, b, c}
	for _, src := range all {
		changes, err := src.ChangesSince(nil)
		assert.NoError(t, err)
		for _, dst := range all {
			assert.NoError(t, dst.ApplyChanges(changes...))
		}
	}
	del(t, b, "x")
	put(t, c, "z", "zz")
	for _, doc := range all {
		ops := doc.Operations()
		assert.Equal(t, replay(ops), doc.Project())
		// order does not matter to replay
		for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
			ops[i], ops[j] = ops[j], ops[i]
		}
		assert.Equal(t, replay(ops), doc.Project())
	}
}

func TestDocumentJSON(t *testing.T) {
	doc, err := FromMap(alice, map[string]any{
		"name":  "Foo",
		"count": 3,
		"ratio": 0.5,
		"ok":    true,
		"none":  nil,
	}, testOptions())
	assert.NoError(t, err)
	assert.Equal(t, []string{"count", "name", "none", "ok", "ratio"}, doc.Keys())
	data, err := json.Marshal(doc)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"name":"Foo","count":3,"ratio":0.5,"ok":true,"none":null}`, string(data))
}
