package dokki

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/drpcorg/dokki/protocol"
	"github.com/drpcorg/dokki/rdx"
)

/*
	A change is one actor's contiguous run of ops, sealed by a hash.

	[ver 1][actor 16][start uvarint][count uvarint][time ms uvarint]
	[msg len uvarint][msg][op records...][sha256 32]

	Op records are TLV:

	P{ K{key} <value record> R{dep}* }
	D{ K{key} R{dep}* }

	A dep is the 16 byte actor id followed by the zipped counter.
	Op counters are implicit: start, start+1, ...
*/

const (
	ChangeFormat = 1
	HashLen      = sha256.Size
	// version, actor, four one-byte varints, hash
	minChangeLen = 1 + rdx.ActorIDLen + 4 + HashLen
)

type Change struct {
	Actor   rdx.ActorID
	Start   uint64
	Time    time.Time
	Message string
	Ops     []Op
	Hash    [HashLen]byte
	Raw     []byte
}

// End is the counter of the last op.
func (ch *Change) End() uint64 {
	return ch.Start + uint64(len(ch.Ops)) - 1
}

func (ch *Change) ID() rdx.OpID {
	return rdx.OpID{Actor: ch.Actor, Counter: ch.Start}
}

// check makes sure the ops are the actor's counters start, start+1...
func (ch *Change) check() error {
	if ch.Actor.IsZero() || ch.Start == 0 || len(ch.Ops) == 0 {
		return &EncodingError{Op: ch.ID(), Reason: "empty change or no actor"}
	}
	for i := range ch.Ops {
		op := &ch.Ops[i]
		if op.ID.Actor != ch.Actor || op.ID.Counter != ch.Start+uint64(i) {
			return &EncodingError{Op: op.ID, Reason: "counters are not contiguous"}
		}
		if op.Key == "" {
			return &EncodingError{Op: op.ID, Reason: ErrEmptyKey.Error()}
		}
		if op.Kind != Put && op.Kind != Delete {
			return &EncodingError{Op: op.ID, Reason: "unknown op kind"}
		}
		if op.Kind == Put {
			if err := op.Value.Check(); err != nil {
				return &EncodingError{Op: op.ID, Reason: err.Error()}
			}
		}
	}
	return nil
}

// EncodeChange seals a run of ops by one actor into a change.
func EncodeChange(actor rdx.ActorID, start uint64, at time.Time, message string, ops []Op) (*Change, error) {
	ch := &Change{
		Actor:   actor,
		Start:   start,
		Time:    truncTime(at),
		Message: message,
		Ops:     ops,
	}
	if err := ch.check(); err != nil {
		return nil, err
	}
	ch.seal()
	return ch, nil
}

func truncTime(t time.Time) time.Time {
	ms := t.UnixMilli()
	if ms < 0 {
		ms = 0
	}
	return time.UnixMilli(ms).UTC()
}

func (ch *Change) seal() {
	ch.Time = truncTime(ch.Time)
	buf := make([]byte, 0, 64+len(ch.Message)+len(ch.Ops)*48)
	buf = append(buf, ChangeFormat)
	buf = append(buf, ch.Actor[:]...)
	buf = binary.AppendUvarint(buf, ch.Start)
	buf = binary.AppendUvarint(buf, uint64(len(ch.Ops)))
	buf = binary.AppendUvarint(buf, uint64(ch.Time.UnixMilli()))
	buf = binary.AppendUvarint(buf, uint64(len(ch.Message)))
	buf = append(buf, ch.Message...)
	for i := range ch.Ops {
		buf = appendOp(buf, &ch.Ops[i])
	}
	ch.Hash = sha256.Sum256(buf)
	ch.Raw = append(buf, ch.Hash[:]...)
}

func appendOp(buf []byte, op *Op) []byte {
	body := protocol.Record('K', []byte(op.Key))
	if op.Kind == Put {
		body = op.Value.AppendTLV(body)
	}
	for _, dep := range op.Deps {
		body = protocol.Append(body, 'R', dep.Bytes())
	}
	return protocol.Append(buf, byte(op.Kind), body)
}

// DecodeChange parses and verifies a change. The hash is checked
// before anything else is read.
func DecodeChange(data []byte) (*Change, error) {
	if len(data) < minChangeLen {
		return nil, malformed("%d bytes is too short", len(data))
	}
	body, sum := data[:len(data)-HashLen], data[len(data)-HashLen:]
	hash := sha256.Sum256(body)
	if !bytes.Equal(hash[:], sum) {
		return nil, &DecodeError{Kind: HashMismatch}
	}
	if body[0] != ChangeFormat {
		return nil, &DecodeError{Kind: UnsupportedVersion, Detail: fmt.Sprintf("format %d", body[0])}
	}
	ch := &Change{Hash: hash, Raw: append([]byte(nil), data...)}
	copy(ch.Actor[:], body[1:1+rdx.ActorIDLen])
	if ch.Actor.IsZero() {
		return nil, malformed("no actor")
	}
	rest := body[1+rdx.ActorIDLen:]
	var fields [4]uint64
	for i := range fields {
		val, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, malformed("bad header varint")
		}
		fields[i] = val
		rest = rest[n:]
	}
	start, count, ms, msglen := fields[0], fields[1], fields[2], fields[3]
	if start == 0 || count == 0 || start+count-1 < start {
		return nil, malformed("bad counter range %d+%d", start, count)
	}
	if count > uint64(len(rest)) || msglen > uint64(len(rest)) || ms > 1<<53 {
		return nil, malformed("header does not fit")
	}
	ch.Start = start
	ch.Time = time.UnixMilli(int64(ms)).UTC()
	ch.Message = string(rest[:msglen])
	rest = rest[msglen:]
	ch.Ops = make([]Op, 0, count)
	for i := uint64(0); i < count; i++ {
		op := Op{ID: rdx.OpID{Actor: ch.Actor, Counter: start + i}}
		var err error
		rest, err = takeOp(rest, &op)
		if err != nil {
			return nil, err
		}
		ch.Ops = append(ch.Ops, op)
	}
	if len(rest) != 0 {
		return nil, malformed("%d trailing bytes", len(rest))
	}
	return ch, nil
}

func takeOp(data []byte, op *Op) (rest []byte, err error) {
	lit, body, rest, err := protocol.TakeAnyWary(data)
	if err != nil {
		return nil, malformed("op %s: %v", op.ID, err)
	}
	op.Kind = OpKind(lit)
	if op.Kind != Put && op.Kind != Delete {
		return nil, malformed("op %s: unknown kind %c", op.ID, lit)
	}
	key, body, err := protocol.TakeWary('K', body)
	if err != nil || len(key) == 0 {
		return nil, malformed("op %s: no key", op.ID)
	}
	op.Key = string(key)
	if op.Kind == Put {
		op.Value, body, err = rdx.TakeValue(body)
		if err != nil {
			return nil, malformed("op %s: %v", op.ID, err)
		}
	}
	for len(body) > 0 {
		var rec []byte
		rec, body, err = protocol.TakeWary('R', body)
		if err != nil {
			return nil, malformed("op %s: bad dep record", op.ID)
		}
		dep, e := rdx.OpIDFromBytes(rec)
		if e != nil || dep.Counter == 0 || dep.Actor.IsZero() {
			return nil, malformed("op %s: bad dep", op.ID)
		}
		if dep.Actor == op.ID.Actor && dep.Counter >= op.ID.Counter {
			return nil, malformed("op %s: depends on its future %s", op.ID, dep)
		}
		op.Deps = append(op.Deps, dep)
	}
	return rest, nil
}

// EncodeOps lays a sequence of ops out as changes: one per run of the
// same actor within the same stored change. Runs that are whole stored
// changes keep their original bytes and hash, other runs of stored ops
// keep their time and message, ops unknown here are stamped with Now.
// Counters of an actor must be contiguous across the whole input.
func (doc *Document) EncodeOps(ops []Op) ([]*Change, error) {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return doc.encodeOps(ops)
}

func (doc *Document) encodeOps(ops []Op) (changes []*Change, err error) {
	last := make(map[rdx.ActorID]uint64)
	from, fromChange := 0, -1
	for i := 0; i <= len(ops); i++ {
		ci := -1
		if i < len(ops) {
			op := &ops[i]
			if prev, ok := last[op.ID.Actor]; ok && op.ID.Counter != prev+1 {
				return nil, &EncodingError{Op: op.ID, Reason: "counters are not contiguous"}
			}
			last[op.ID.Actor] = op.ID.Counter
			if at, ok := doc.log.index[op.ID]; ok {
				ci = doc.log.changeOf[at]
			}
			if i > from && ops[i-1].ID.Actor == op.ID.Actor && ci == fromChange {
				continue
			}
		}
		if i > from {
			ch, err := doc.runChange(ops[from:i], fromChange)
			if err != nil {
				return nil, err
			}
			changes = append(changes, ch)
		}
		from, fromChange = i, ci
	}
	return changes, nil
}

// runChange seals a run. Ops the log does not hold get the current
// time and no message.
func (doc *Document) runChange(run []Op, ci int) (*Change, error) {
	at := doc.opts.Now()
	var message string
	if ci >= 0 {
		m := &doc.log.changes[ci]
		if m.raw != nil && m.start == run[0].ID.Counter && m.count == len(run) {
			return &Change{
				Actor:   m.actor,
				Start:   m.start,
				Time:    m.time,
				Message: m.message,
				Ops:     append([]Op(nil), run...),
				Hash:    m.hash,
				Raw:     m.raw,
			}, nil
		}
		at, message = m.time, m.message
	}
	return EncodeChange(run[0].ID.Actor, run[0].ID.Counter, at, message, append([]Op(nil), run...))
}
