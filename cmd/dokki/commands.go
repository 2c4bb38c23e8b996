package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/drpcorg/dokki"
	"github.com/drpcorg/dokki/rdx"
	"github.com/drpcorg/dokki/store"
	"github.com/drpcorg/dokki/utils"
)

type Replica struct {
	doc   *dokki.Document
	txn   *dokki.Txn
	last  *dokki.Change
	store *store.Store
	stop  context.CancelFunc
}

func (r *Replica) Close() error {
	if r.stop != nil {
		r.stop()
	}
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

func (r *Replica) tx() *dokki.Txn {
	if r.txn == nil {
		r.txn = r.doc.Begin()
	}
	return r.txn
}

var options = dokki.Options{
	Logger: utils.NewDefaultLogger(slog.LevelInfo),
}

func (repl *REPL) replica(name string) (*Replica, error) {
	r, ok := repl.replicas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoReplica, name)
	}
	return r, nil
}

func (repl *REPL) cur() (*Replica, error) {
	return repl.replica(repl.current)
}

func (repl *REPL) add(name string, doc *dokki.Document) {
	repl.replicas[name] = &Replica{doc: doc}
	repl.current = name
	_, _ = fmt.Fprintf(repl.out, "%s is %s\n", name, doc.Actor())
}

func (repl *REPL) CommandNew(args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	if _, ok := repl.replicas[args[0]]; ok {
		return fmt.Errorf("replica %q exists", args[0])
	}
	repl.add(args[0], dokki.New(rdx.NewActorID(), options))
	return nil
}

func (repl *REPL) CommandUse(args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	if _, err := repl.replica(args[0]); err != nil {
		return err
	}
	repl.current = args[0]
	return nil
}

func (repl *REPL) CommandClone(args []string) error {
	if len(args) != 2 {
		return ErrUsage
	}
	src, err := repl.replica(args[0])
	if err != nil {
		return err
	}
	repl.add(args[1], src.doc.Clone(rdx.NewActorID()))
	return nil
}

func (repl *REPL) CommandList(args []string) error {
	names := make([]string, 0, len(repl.replicas))
	for name := range repl.replicas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := repl.replicas[name]
		mark := " "
		if name == repl.current {
			mark = "*"
		}
		_, _ = fmt.Fprintf(repl.out, "%s %s\t%s\t%d ops\n", mark, name, r.doc.Actor().Short(), r.doc.Len())
	}
	return nil
}

func (repl *REPL) CommandPut(rest string) error {
	r, err := repl.cur()
	if err != nil {
		return err
	}
	key, txt, ok := cutField(rest)
	if !ok {
		return ErrUsage
	}
	val, err := rdx.ParseValue(txt)
	if err != nil {
		return err
	}
	return r.tx().Put(key, val)
}

func (repl *REPL) CommandDel(args []string) error {
	r, err := repl.cur()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return ErrUsage
	}
	return r.tx().Delete(args[0])
}

func (repl *REPL) CommandGet(args []string) error {
	r, err := repl.cur()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return ErrUsage
	}
	var val rdx.Value
	var ok bool
	if r.txn != nil {
		val, ok = r.txn.Get(args[0])
	} else {
		val, ok = r.doc.Get(args[0])
	}
	if !ok {
		_, _ = fmt.Fprintln(repl.out, "(none)")
		return nil
	}
	_, _ = fmt.Fprintln(repl.out, val.String())
	if conflicts := r.doc.Conflicts(args[0]); len(conflicts) > 1 {
		_, _ = fmt.Fprintf(repl.out, "(%d concurrent values)\n", len(conflicts))
	}
	return nil
}

func (repl *REPL) CommandCommit(message string) error {
	r, err := repl.cur()
	if err != nil {
		return err
	}
	if r.txn == nil {
		return nil
	}
	ch, err := r.txn.Commit(message)
	r.txn = nil
	if err != nil || ch == nil {
		return err
	}
	r.last = ch
	_, _ = fmt.Fprintln(repl.out, ch.String())
	return nil
}

func (repl *REPL) CommandDiscard(args []string) error {
	r, err := repl.cur()
	if err != nil {
		return err
	}
	if r.txn != nil {
		r.txn.Discard()
		r.txn = nil
	}
	return nil
}

func (repl *REPL) CommandChanges(args []string) error {
	r, err := repl.cur()
	if err != nil {
		return err
	}
	since := rdx.VV{}
	if len(args) == 1 {
		peer, err := repl.replica(args[0])
		if err != nil {
			return err
		}
		since = peer.doc.Version()
	}
	changes, err := r.doc.ChangesSince(since)
	if err != nil {
		return err
	}
	for _, ch := range changes {
		ch.Dump(repl.out)
	}
	return nil
}

// CommandMerge pulls everything the peer has as one update blob,
// the way a transport would carry it.
func (repl *REPL) CommandMerge(args []string) error {
	r, err := repl.cur()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return ErrUsage
	}
	peer, err := repl.replica(args[0])
	if err != nil {
		return err
	}
	blob, err := peer.doc.EncodeAsUpdate(r.doc.Version())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(repl.out, "update of %d bytes\n", len(blob))
	if err = r.doc.ApplyUpdate(blob); err != nil {
		return err
	}
	if r.store != nil {
		changes, err := r.doc.ChangesSince(nil)
		if err != nil {
			return err
		}
		_, err = r.store.Save(changes...)
		return err
	}
	return nil
}

func (repl *REPL) CommandPersist(args []string) error {
	r, err := repl.cur()
	if err != nil {
		return err
	}
	if len(args) != 1 || r.store != nil {
		return ErrUsage
	}
	s, err := store.Open(args[0], store.Options{Logger: options.Logger})
	if err != nil {
		return err
	}
	if err = s.Restore(r.doc); err != nil {
		_ = s.Close()
		return err
	}
	changes, err := r.doc.ChangesSince(nil)
	if err != nil {
		_ = s.Close()
		return err
	}
	if _, err = s.Save(changes...); err != nil {
		_ = s.Close()
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	hose := r.doc.AddHose("store")
	go func() {
		if err := s.Follow(ctx, hose); err != nil {
			options.Logger.Error("store follow failed", "err", err)
		}
	}()
	r.store, r.stop = s, cancel
	return nil
}

func (repl *REPL) CommandShow(args []string) error {
	r, err := repl.cur()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(repl.out, string(data))
	return nil
}

func (repl *REPL) CommandDump(args []string) error {
	r, err := repl.cur()
	if err != nil {
		return err
	}
	if len(args) == 1 && args[0] == "hex" {
		if r.last != nil {
			_, _ = fmt.Fprint(repl.out, r.last.Hex())
		}
		return nil
	}
	r.doc.Dump(repl.out)
	return nil
}

func cutField(s string) (first, rest string, ok bool) {
	for i, c := range s {
		if c == ' ' || c == '\t' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", s != ""
}
