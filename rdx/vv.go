package rdx

import (
	"errors"
	"slices"
	"strings"

	"github.com/drpcorg/dokki/protocol"
)

// VV is a version vector (a state vector), max counter seen from each
// known actor.
type VV map[ActorID]uint64

func (vv VV) Get(actor ActorID) uint64 {
	return vv[actor]
}

// Set the progress for the specified actor
func (vv VV) Set(actor ActorID, counter uint64) {
	vv[actor] = counter
}

// Put the actor-counter pair to the VV, returns whether it was
// unseen (i.e. made any difference)
func (vv VV) Put(actor ActorID, counter uint64) bool {
	pre, ok := vv[actor]
	if ok && pre >= counter {
		return false
	}
	vv[actor] = counter
	return true
}

// Adds the id to the VV, returns whether it was unseen
func (vv VV) PutID(id OpID) bool {
	return vv.Put(id.Actor, id.Counter)
}

// Contains tells whether the op is covered by this VV.
func (vv VV) Contains(id OpID) bool {
	return id.Counter != 0 && id.Counter <= vv[id.Actor]
}

// Whether this VV has anything the other one lacks
func (vv VV) ProgressedOver(b VV) bool {
	for actor, counter := range vv {
		if counter > b[actor] {
			return true
		}
	}
	return false
}

// InterestOver lists the actors this VV is ahead on, with the
// counters b has seen so far.
func (vv VV) InterestOver(b VV) VV {
	ahead := make(VV)
	for actor, counter := range vv {
		bc := b[actor]
		if counter > bc {
			ahead[actor] = bc
		}
	}
	return ahead
}

// Seen tells whether everything in bb is covered by vv.
func (vv VV) Seen(bb VV) bool {
	for actor, counter := range bb {
		if counter > vv[actor] {
			return false
		}
	}
	return true
}

func (vv VV) Merge(b VV) {
	for actor, counter := range b {
		vv.Put(actor, counter)
	}
}

func (vv VV) Clone() VV {
	ret := make(VV, len(vv))
	for actor, counter := range vv {
		if counter != 0 {
			ret[actor] = counter
		}
	}
	return ret
}

func (vv VV) Equal(b VV) bool {
	return vv.Seen(b) && b.Seen(vv)
}

// IDs are the latest ids, sorted by actor
func (vv VV) IDs() (ids []OpID) {
	for actor, counter := range vv {
		if counter != 0 {
			ids = append(ids, OpID{actor, counter})
		}
	}
	slices.SortFunc(ids, func(a, b OpID) int {
		return a.Actor.Compare(b.Actor)
	})
	return
}

// TLV Vv record, nil for empty
func (vv VV) TLV() (ret []byte) {
	for _, id := range vv.IDs() {
		ret = protocol.Append(ret, 'V', id.Bytes())
	}
	return
}

var ErrBadVRecord = errors.New("rdx: bad V record")

// consumes: Vv record
func (vv VV) PutTLV(rec []byte) (err error) {
	rest := rec
	for len(rest) > 0 {
		var val []byte
		val, rest, err = protocol.TakeWary('V', rest)
		if err != nil {
			return ErrBadVRecord
		}
		id, e := OpIDFromBytes(val)
		if e != nil {
			return ErrBadVRecord
		}
		vv.PutID(id)
	}
	return
}

func VVFromTLV(tlv []byte) (vv VV, err error) {
	vv = make(VV)
	err = vv.PutTLV(tlv)
	return
}

func (vv VV) String() string {
	ids := vv.IDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ",")
}

func VVFromString(txt string) (vv VV, err error) {
	vv = make(VV)
	for _, part := range strings.Split(txt, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var id OpID
		id, err = ParseOpID(part)
		if err != nil {
			return nil, err
		}
		vv.PutID(id)
	}
	return
}
