package dokki

import (
	"fmt"
	"slices"
	"time"

	"github.com/drpcorg/dokki/rdx"
	"github.com/drpcorg/dokki/utils"
)

type OpKind byte

const (
	Put    OpKind = 'P'
	Delete OpKind = 'D'
)

func (k OpKind) String() string {
	switch k {
	case Put:
		return "put"
	case Delete:
		return "del"
	}
	return fmt.Sprintf("op(%c)", byte(k))
}

// Op is an immutable edit. Deps are the actor's own previous op
// (if any) and every same-key write it overwrites.
type Op struct {
	ID    rdx.OpID
	Kind  OpKind
	Key   string
	Value rdx.Value
	Deps  []rdx.OpID
}

func (op *Op) dependsOn(id rdx.OpID) bool {
	for _, dep := range op.Deps {
		if dep == id {
			return true
		}
	}
	return false
}

// changeMeta is one change as stored: a run of ops occupying
// ops[first:first+count]. raw and hash are set only when the run is
// a whole change as it was committed or received.
type changeMeta struct {
	actor   rdx.ActorID
	start   uint64
	count   int
	first   int
	time    time.Time
	message string
	hash    [32]byte
	raw     []byte
}

// opLog is an arena of ops in append order, which is always a
// topological order of the dependency graph.
type opLog struct {
	ops      []Op
	index    map[rdx.OpID]int
	changeOf []int
	changes  []changeMeta
	hashes   map[[32]byte]int
	heads    map[rdx.OpID]struct{}
	clock    *Clock
	proj     *projector
}

func newOpLog() *opLog {
	return &opLog{
		index:  make(map[rdx.OpID]int),
		hashes: make(map[[32]byte]int),
		heads:  make(map[rdx.OpID]struct{}),
		clock:  NewClock(),
		proj:   newProjector(),
	}
}

func (l *opLog) contains(id rdx.OpID) bool {
	_, ok := l.index[id]
	return ok
}

func (l *opLog) get(id rdx.OpID) (op *Op, ok bool) {
	i, ok := l.index[id]
	if !ok {
		return nil, false
	}
	return &l.ops[i], true
}

func (l *opLog) append(op Op) error {
	return l.appendBatch([]Op{op}, changeMeta{})
}

// appendBatch validates the whole batch before touching anything, so
// it either appends every op or none. Each same-actor run of the batch
// is recorded as a change with the metadata of tmpl.
func (l *opLog) appendBatch(ops []Op, tmpl changeMeta) error {
	virtual := &Clock{vv: make(rdx.VV)}
	staged := make(map[rdx.OpID]struct{}, len(ops))
	runs := 0
	for i := range ops {
		op := &ops[i]
		if op.ID.Actor.IsZero() || op.Key == "" || (op.Kind != Put && op.Kind != Delete) {
			return &EncodingError{Op: op.ID, Reason: "invalid op"}
		}
		actor := op.ID.Actor
		if _, ok := virtual.vv[actor]; !ok {
			virtual.vv[actor] = l.clock.vv[actor]
		}
		if err := virtual.Advance(actor, op.ID.Counter, 1); err != nil {
			return err
		}
		for _, dep := range op.Deps {
			if _, ok := staged[dep]; !ok && !l.contains(dep) {
				return &CausalityError{Op: op.ID, Missing: dep}
			}
		}
		staged[op.ID] = struct{}{}
		if i == 0 || ops[i-1].ID.Actor != actor {
			runs++
		}
	}
	if runs != 1 {
		tmpl.raw = nil
		tmpl.hash = [32]byte{}
	}
	for i := range ops {
		if i == 0 || ops[i-1].ID.Actor != ops[i].ID.Actor {
			meta := tmpl
			meta.actor = ops[i].ID.Actor
			meta.start = ops[i].ID.Counter
			meta.first = len(l.ops)
			meta.count = 0
			l.changes = append(l.changes, meta)
		}
		l.applyOp(ops[i])
	}
	l.clock.vv.Merge(virtual.vv)
	if runs == 1 && tmpl.raw != nil {
		l.hashes[tmpl.hash] = len(l.changes) - 1
	}
	return nil
}

func (l *opLog) applyOp(op Op) {
	at := len(l.ops)
	l.ops = append(l.ops, op)
	l.index[op.ID] = at
	l.changeOf = append(l.changeOf, len(l.changes)-1)
	l.changes[len(l.changes)-1].count++
	for _, dep := range op.Deps {
		delete(l.heads, dep)
	}
	l.heads[op.ID] = struct{}{}
	l.proj.add(l.ops, at)
}

// opSlice is the not-yet-known tail of a stored change.
type opSlice struct {
	change   int
	from, to int
	actor    rdx.ActorID
	start    uint64
}

// operationsSince returns every op not covered by v. Changes stay
// whole (or keep their unknown tail) and are ordered topologically;
// among ready ones the lowest (actor, counter) goes first, so any two
// replicas holding the same ops produce the same sequence.
func (l *opLog) operationsSince(v rdx.VV) []Op {
	var tails []opSlice
	for ci := range l.changes {
		m := &l.changes[ci]
		known := v[m.actor]
		last := m.start + uint64(m.count) - 1
		if last <= known {
			continue
		}
		s := opSlice{change: ci, from: m.first, to: m.first + m.count, actor: m.actor, start: m.start}
		if known >= m.start {
			s.from += int(known - m.start + 1)
			s.start = known + 1
		}
		tails = append(tails, s)
	}
	if len(tails) == 0 {
		return nil
	}
	slices.SortFunc(tails, func(a, b opSlice) int {
		if c := a.actor.Compare(b.actor); c != 0 {
			return c
		}
		return cmpUint64(a.start, b.start)
	})
	tailOf := make(map[int]int, len(tails))
	for ti := range tails {
		tailOf[tails[ti].change] = ti
	}
	indeg := make([]int, len(tails))
	dependents := make([][]int, len(tails))
	for ti := range tails {
		t := &tails[ti]
		seen := make(map[int]struct{})
		for i := t.from; i < t.to; i++ {
			for _, dep := range l.ops[i].Deps {
				if v.Contains(dep) {
					continue
				}
				di, ok := tailOf[l.changeOf[l.index[dep]]]
				if !ok || di == ti {
					continue
				}
				if _, dup := seen[di]; dup {
					continue
				}
				seen[di] = struct{}{}
				dependents[di] = append(dependents[di], ti)
				indeg[ti]++
			}
		}
	}
	ready := utils.NewHeap[int](len(tails))
	for ti := range tails {
		if indeg[ti] == 0 {
			ready.Push(ti)
		}
	}
	ret := make([]Op, 0, len(l.ops))
	for ready.Len() > 0 {
		ti := ready.Pop()
		ret = append(ret, l.ops[tails[ti].from:tails[ti].to]...)
		for _, di := range dependents[ti] {
			indeg[di]--
			if indeg[di] == 0 {
				ready.Push(di)
			}
		}
	}
	return ret
}

func cmpUint64(a, b uint64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func (l *opLog) headIDs() []rdx.OpID {
	ids := make([]rdx.OpID, 0, len(l.heads))
	for id := range l.heads {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// versionAt is the state vector of everything the heads causally
// include. Reaching counter c of an actor covers its ops below c too.
func (l *opLog) versionAt(heads []rdx.OpID) (rdx.VV, error) {
	vv := make(rdx.VV)
	stack := append([]rdx.OpID{}, heads...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !l.contains(id) {
			return nil, &CausalityError{Missing: id}
		}
		from := vv[id.Actor]
		if from >= id.Counter {
			continue
		}
		for c := from + 1; c <= id.Counter; c++ {
			op, _ := l.get(rdx.OpID{Actor: id.Actor, Counter: c})
			stack = append(stack, op.Deps...)
		}
		vv[id.Actor] = id.Counter
	}
	return vv, nil
}

func (l *opLog) clone() *opLog {
	c := &opLog{
		ops:      make([]Op, len(l.ops)),
		index:    make(map[rdx.OpID]int, len(l.index)),
		changeOf: append([]int{}, l.changeOf...),
		changes:  append([]changeMeta{}, l.changes...),
		hashes:   make(map[[32]byte]int, len(l.hashes)),
		heads:    make(map[rdx.OpID]struct{}, len(l.heads)),
		clock:    l.clock.clone(),
		proj:     l.proj.clone(),
	}
	for i, op := range l.ops {
		op.Deps = append([]rdx.OpID(nil), op.Deps...)
		c.ops[i] = op
	}
	for id, i := range l.index {
		c.index[id] = i
	}
	for h, i := range l.hashes {
		c.hashes[h] = i
	}
	for id := range l.heads {
		c.heads[id] = struct{}{}
	}
	return c
}
