package rdx

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/google/uuid"
)

/*
	ActorID is a 128-bit replica identifier, normally a UUIDv7.
	OpID is an (actor, counter) pair. Counters are per-actor,
	gapless and start at 1, so OpID{a, 0} is "nothing seen from a".

	The text form of an OpID is counter@actor, e.g.

	17@0190b3c2e1d47a3c8f1e2d3c4b5a6978
*/

const ActorIDLen = 16

type ActorID [ActorIDLen]byte

var ActorID0 ActorID

var ErrBadActorID = errors.New("rdx: bad actor id")
var ErrBadOpID = errors.New("rdx: bad op id")

// NewActorID makes a fresh random actor id.
func NewActorID() ActorID {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return ActorID(u)
}

func ActorIDFromBytes(by []byte) (a ActorID, err error) {
	if len(by) != ActorIDLen {
		return ActorID0, ErrBadActorID
	}
	copy(a[:], by)
	return
}

func ParseActorID(txt string) (a ActorID, err error) {
	if len(txt) != ActorIDLen*2 {
		return ActorID0, ErrBadActorID
	}
	_, err = hex.Decode(a[:], []byte(txt))
	if err != nil {
		return ActorID0, ErrBadActorID
	}
	return
}

func (a ActorID) IsZero() bool {
	return a == ActorID0
}

func (a ActorID) Compare(b ActorID) int {
	return bytes.Compare(a[:], b[:])
}

func (a ActorID) String() string {
	return hex.EncodeToString(a[:])
}

// Short is the first 8 hex digits, handy in logs.
func (a ActorID) Short() string {
	return hex.EncodeToString(a[:4])
}

type OpID struct {
	Actor   ActorID
	Counter uint64
}

var BadOpID = OpID{Counter: ^uint64(0)}

func NewOpID(actor ActorID, counter uint64) OpID {
	return OpID{Actor: actor, Counter: counter}
}

// Compare orders ids by counter, then by actor. The higher id wins
// a concurrent write conflict.
func (id OpID) Compare(other OpID) int {
	if id.Counter != other.Counter {
		if id.Counter < other.Counter {
			return -1
		}
		return 1
	}
	return id.Actor.Compare(other.Actor)
}

func (id OpID) Less(other OpID) bool {
	return id.Compare(other) < 0
}

// ActorLess orders ids by actor, then by counter (the log order).
func (id OpID) ActorLess(other OpID) bool {
	if c := id.Actor.Compare(other.Actor); c != 0 {
		return c < 0
	}
	return id.Counter < other.Counter
}

func (id OpID) IsZero() bool {
	return id.Counter == 0
}

// Prev is the previous op of the same actor, zero for the first op.
func (id OpID) Prev() OpID {
	if id.Counter == 0 {
		return id
	}
	return OpID{id.Actor, id.Counter - 1}
}

// Bytes is the actor followed by the zipped counter.
func (id OpID) Bytes() []byte {
	ret := make([]byte, 0, ActorIDLen+8)
	ret = append(ret, id.Actor[:]...)
	return append(ret, ZipUint64(id.Counter)...)
}

func OpIDFromBytes(by []byte) (id OpID, err error) {
	if len(by) < ActorIDLen || len(by) > ActorIDLen+8 {
		return BadOpID, ErrBadOpID
	}
	copy(id.Actor[:], by[:ActorIDLen])
	id.Counter = UnzipUint64(by[ActorIDLen:])
	return
}

func (id OpID) String() string {
	var buf [64]byte
	b := strconv.AppendUint(buf[:0], id.Counter, 10)
	b = append(b, '@')
	b = hex.AppendEncode(b, id.Actor[:])
	return string(b)
}

func ParseOpID(txt string) (id OpID, err error) {
	at := bytes.IndexByte([]byte(txt), '@')
	if at <= 0 {
		return BadOpID, ErrBadOpID
	}
	id.Counter, err = strconv.ParseUint(txt[:at], 10, 64)
	if err != nil {
		return BadOpID, ErrBadOpID
	}
	id.Actor, err = ParseActorID(txt[at+1:])
	if err != nil {
		return BadOpID, err
	}
	return
}
