package dokki

import (
	"encoding/binary"
	"encoding/json"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/drpcorg/dokki/rdx"
)

// projector keeps, per key, the surviving writes: same-key ops no
// other same-key op depends on. The log is appended in topological
// order, so a new op never gains a dependent later on and the
// survivors can be maintained incrementally.
type projector struct {
	survivors map[string][]int
	view      map[string]rdx.Value
}

func newProjector() *projector {
	return &projector{
		survivors: make(map[string][]int),
		view:      make(map[string]rdx.Value),
	}
}

func (p *projector) add(ops []Op, i int) {
	op := &ops[i]
	surv := p.survivors[op.Key]
	kept := surv[:0]
	for _, s := range surv {
		if !op.dependsOn(ops[s].ID) {
			kept = append(kept, s)
		}
	}
	p.survivors[op.Key] = append(kept, i)
	w := &ops[winner(ops, p.survivors[op.Key])]
	if w.Kind == Put {
		p.view[op.Key] = w.Value
	} else {
		delete(p.view, op.Key)
	}
}

// winner is the highest op id among the survivors.
func winner(ops []Op, surv []int) int {
	w := surv[0]
	for _, s := range surv[1:] {
		if ops[w].ID.Less(ops[s].ID) {
			w = s
		}
	}
	return w
}

func (p *projector) clone() *projector {
	c := &projector{
		survivors: make(map[string][]int, len(p.survivors)),
		view:      make(map[string]rdx.Value, len(p.view)),
	}
	for key, surv := range p.survivors {
		c.survivors[key] = append([]int(nil), surv...)
	}
	for key, val := range p.view {
		c.view[key] = val
	}
	return c
}

// replay projects a set of ops from scratch, in whatever order.
func replay(ops []Op) map[string]rdx.Value {
	byKey := make(map[string][]int)
	for i := range ops {
		byKey[ops[i].Key] = append(byKey[ops[i].Key], i)
	}
	view := make(map[string]rdx.Value)
	for key, idx := range byKey {
		overwritten := make(map[rdx.OpID]struct{})
		for _, i := range idx {
			for _, dep := range ops[i].Deps {
				overwritten[dep] = struct{}{}
			}
		}
		var surv []int
		for _, i := range idx {
			if _, ok := overwritten[ops[i].ID]; !ok {
				surv = append(surv, i)
			}
		}
		if w := &ops[winner(ops, surv)]; w.Kind == Put {
			view[key] = w.Value
		}
	}
	return view
}

// Project is the visible document: key to winning value, deleted
// keys left out. The map is a copy.
func (doc *Document) Project() map[string]rdx.Value {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	ret := make(map[string]rdx.Value, len(doc.log.proj.view))
	for key, val := range doc.log.proj.view {
		ret[key] = val
	}
	return ret
}

func (doc *Document) Get(key string) (val rdx.Value, ok bool) {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	val, ok = doc.log.proj.view[key]
	return
}

// Keys are the visible keys, sorted.
func (doc *Document) Keys() []string {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return doc.keys()
}

func (doc *Document) keys() []string {
	keys := make([]string, 0, len(doc.log.proj.view))
	for key := range doc.log.proj.view {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Conflicts lists the values of concurrent surviving writes of the
// key, the winner first. Nil if the key is not visible.
func (doc *Document) Conflicts(key string) []rdx.Value {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	if _, ok := doc.log.proj.view[key]; !ok {
		return nil
	}
	ops := doc.log.ops
	surv := append([]int(nil), doc.log.proj.survivors[key]...)
	slices.SortFunc(surv, func(a, b int) int {
		return ops[b].ID.Compare(ops[a].ID)
	})
	var ret []rdx.Value
	for _, s := range surv {
		if ops[s].Kind == Put {
			ret = append(ret, ops[s].Value)
		}
	}
	return ret
}

// Digest hashes the visible document. Replicas that converged have
// equal digests.
func (doc *Document) Digest() uint64 {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	h := xxhash.New()
	var buf []byte
	for _, key := range doc.keys() {
		buf = binary.AppendUvarint(buf[:0], uint64(len(key)))
		buf = append(buf, key...)
		buf = doc.log.proj.view[key].AppendTLV(buf)
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}

func (doc *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(doc.Project())
}
