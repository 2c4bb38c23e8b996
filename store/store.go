// Package store keeps encoded changes in pebble, so that a replica can
// be restored after a restart. Changes are opaque blobs to it, keyed
// by their hash and replayed in the order they were saved.
package store

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/dokki"
	"github.com/drpcorg/dokki/protocol"
	"github.com/drpcorg/dokki/rdx"
	"github.com/drpcorg/dokki/utils"
	"github.com/pkg/errors"
)

const (
	hashKey    = 'H' // H hash -> change blob
	seqKey     = 'S' // S seq -> hash
	versionKey = 'V' // V name -> state vector
)

var ErrNotFound = errors.New("store: change not found")
var ErrBadBlob = errors.New("store: not a change blob")

type Options struct {
	pebble.Options

	Logger utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
}

type Store struct {
	db   *pebble.DB
	opts Options

	seq  uint64
	lock sync.Mutex
}

func Open(dir string, opts Options) (*Store, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &opts.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "open store at %s", dir)
	}
	s := &Store{db: db, opts: opts}
	if s.seq, err = s.lastSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "close store")
}

func hkey(hash []byte) []byte {
	return append([]byte{hashKey}, hash...)
}

func skey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{seqKey}, seq)
}

func (s *Store) lastSeq() (uint64, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{seqKey},
		UpperBound: []byte{seqKey + 1},
	})
	if err != nil {
		return 0, errors.Wrap(err, "scan store")
	}
	defer it.Close()
	if !it.Last() {
		return 0, nil
	}
	return binary.BigEndian.Uint64(it.Key()[1:]), nil
}

// Save stores the changes not stored yet, returns how many were new.
func (s *Store) Save(changes ...*dokki.Change) (int, error) {
	blobs := make([][]byte, 0, len(changes))
	for _, ch := range changes {
		blobs = append(blobs, ch.Raw)
	}
	return s.SaveBlobs(blobs...)
}

// SaveBlobs stores encoded changes. The hash is taken off the blob
// tail, the blob is not decoded.
func (s *Store) SaveBlobs(blobs ...[]byte) (saved int, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	batch := s.db.NewBatch()
	defer batch.Close()
	seen := make(map[string]struct{}, len(blobs))
	seq := s.seq
	for _, blob := range blobs {
		if len(blob) <= dokki.HashLen {
			return 0, ErrBadBlob
		}
		hash := blob[len(blob)-dokki.HashLen:]
		if _, dup := seen[string(hash)]; dup {
			continue
		}
		seen[string(hash)] = struct{}{}
		ok, err := s.has(hash)
		if err != nil {
			return 0, err
		} else if ok {
			continue
		}
		seq++
		if err = batch.Set(hkey(hash), blob, nil); err != nil {
			return 0, errors.Wrap(err, "save change")
		}
		if err = batch.Set(skey(seq), hash, nil); err != nil {
			return 0, errors.Wrap(err, "save change")
		}
		saved++
	}
	if saved == 0 {
		return 0, nil
	}
	if err = batch.Commit(pebble.Sync); err != nil {
		return 0, errors.Wrap(err, "commit changes")
	}
	s.seq = seq
	s.opts.Logger.Debug("changes saved", "count", saved, "seq", seq)
	return saved, nil
}

func (s *Store) has(hash []byte) (bool, error) {
	_, closer, err := s.db.Get(hkey(hash))
	if err == pebble.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(err, "look up change")
	}
	_ = closer.Close()
	return true, nil
}

func (s *Store) Has(hash [dokki.HashLen]byte) (bool, error) {
	return s.has(hash[:])
}

// Get returns a copy of the stored blob.
func (s *Store) Get(hash [dokki.HashLen]byte) ([]byte, error) {
	val, closer, err := s.db.Get(hkey(hash[:]))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "get change")
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// Len is the number of stored changes.
func (s *Store) Len() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.seq
}

// Changes lists every stored blob in the order of saving.
func (s *Store) Changes() (protocol.Records, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{seqKey},
		UpperBound: []byte{seqKey + 1},
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan store")
	}
	defer it.Close()
	var recs protocol.Records
	for it.First(); it.Valid(); it.Next() {
		var hash [dokki.HashLen]byte
		copy(hash[:], it.Value())
		blob, err := s.Get(hash)
		if err != nil {
			return nil, errors.Wrapf(err, "change #%d", binary.BigEndian.Uint64(it.Key()[1:]))
		}
		recs = append(recs, blob)
	}
	return recs, errors.Wrap(it.Error(), "scan store")
}

// Restore merges every stored change into doc.
func (s *Store) Restore(doc *dokki.Document) error {
	recs, err := s.Changes()
	if err != nil {
		return err
	}
	s.opts.Logger.Info("restoring", "changes", len(recs), "bytes", recs.TotalLen())
	return doc.ApplyChangeBytes(recs...)
}

// Follow saves everything coming out of a document hose until the
// hose is closed or ctx is done.
func (s *Store) Follow(ctx context.Context, hose *utils.Queue[protocol.Records]) error {
	for {
		recs, err := hose.Feed(ctx)
		if err != nil {
			if err == utils.ErrClosed || err == context.Canceled {
				return nil
			}
			return err
		}
		if _, err = s.SaveBlobs(recs...); err != nil {
			return err
		}
	}
}

// SaveVersion remembers a named version, e.g. what a peer has seen.
func (s *Store) SaveVersion(name string, vv rdx.VV) error {
	key := append([]byte{versionKey}, name...)
	return errors.Wrap(s.db.Set(key, vv.TLV(), pebble.Sync), "save version")
}

// LoadVersion returns the named version, empty if there is none.
func (s *Store) LoadVersion(name string) (rdx.VV, error) {
	key := append([]byte{versionKey}, name...)
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return make(rdx.VV), nil
	} else if err != nil {
		return nil, errors.Wrap(err, "load version")
	}
	defer closer.Close()
	vv, err := rdx.VVFromTLV(val)
	return vv, errors.Wrapf(err, "version %s", name)
}
