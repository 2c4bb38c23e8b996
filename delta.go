package dokki

import (
	"fmt"

	"github.com/drpcorg/dokki/protocol"
	"github.com/drpcorg/dokki/rdx"
)

// ChangesSince is everything this replica has that a replica at
// version v lacks, as changes in a dependency-respecting order.
func (doc *Document) ChangesSince(v rdx.VV) ([]*Change, error) {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return doc.encodeOps(doc.log.operationsSince(v))
}

// GetChanges is ChangesSince for a version given as heads.
func (doc *Document) GetChanges(heads []rdx.OpID) ([]*Change, error) {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	v, err := doc.log.versionAt(heads)
	if err != nil {
		return nil, err
	}
	return doc.encodeOps(doc.log.operationsSince(v))
}

// VersionAt converts heads (all known here) to a state vector.
func (doc *Document) VersionAt(heads []rdx.OpID) (rdx.VV, error) {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	return doc.log.versionAt(heads)
}

// Update bundles changes with the state vector of the sender.
//
//	U{ V{ V{id}... } C{change}... }
type Update struct {
	Version rdx.VV
	Changes []*Change
}

func NewUpdate(version rdx.VV, changes []*Change) *Update {
	return &Update{Version: version, Changes: changes}
}

func (u *Update) Bytes() []byte {
	size := 16 + 24*len(u.Version)
	for _, ch := range u.Changes {
		size += len(ch.Raw) + 5
	}
	buf := make([]byte, 0, size)
	bm, buf := protocol.OpenHeader(buf, 'U')
	buf = protocol.Append(buf, 'V', u.Version.TLV())
	for _, ch := range u.Changes {
		buf = protocol.Append(buf, 'C', ch.Raw)
	}
	protocol.CloseHeader(buf, bm)
	return buf
}

func DecodeUpdate(data []byte) (*Update, error) {
	body, rest, err := protocol.TakeWary('U', data)
	if err != nil || len(rest) != 0 {
		return nil, fmt.Errorf("%w: no U record", ErrBadUpdate)
	}
	vrec, body, err := protocol.TakeWary('V', body)
	if err != nil {
		return nil, fmt.Errorf("%w: no version", ErrBadUpdate)
	}
	u := &Update{}
	if u.Version, err = rdx.VVFromTLV(vrec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadUpdate, err)
	}
	for len(body) > 0 {
		var rec []byte
		rec, body, err = protocol.TakeWary('C', body)
		if err != nil {
			return nil, fmt.Errorf("%w: bad change record", ErrBadUpdate)
		}
		ch, err := DecodeChange(rec)
		if err != nil {
			return nil, err
		}
		u.Changes = append(u.Changes, ch)
	}
	return u, nil
}

// EncodeAsUpdate is ChangesSince(v) as a single blob.
func (doc *Document) EncodeAsUpdate(v rdx.VV) ([]byte, error) {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	changes, err := doc.encodeOps(doc.log.operationsSince(v))
	if err != nil {
		return nil, err
	}
	return NewUpdate(doc.log.clock.CurrentVersion(), changes).Bytes(), nil
}

func (doc *Document) ApplyUpdate(data []byte) error {
	u, err := DecodeUpdate(data)
	if err != nil {
		doc.stats.rejected.Add(1)
		doc.opts.Logger.Warn("rejected update", "err", err)
		return err
	}
	return doc.ApplyChanges(u.Changes...)
}
