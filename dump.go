package dokki

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

func (op *Op) String() string {
	var b strings.Builder
	b.WriteString(op.ID.String())
	b.WriteByte(' ')
	b.WriteString(op.Kind.String())
	b.WriteByte(' ')
	b.WriteString(fmt.Sprintf("%q", op.Key))
	if op.Kind == Put {
		b.WriteString(" = ")
		b.WriteString(op.Value.String())
	}
	if len(op.Deps) > 0 {
		b.WriteString(" after")
		for _, dep := range op.Deps {
			b.WriteByte(' ')
			b.WriteString(dep.String())
		}
	}
	return b.String()
}

func (ch *Change) String() string {
	return fmt.Sprintf("change %x %s..%d (%d ops)", ch.Hash[:6], ch.ID(), ch.End(), len(ch.Ops))
}

// Dump writes the change in a human-readable form.
func (ch *Change) Dump(w io.Writer) {
	_, _ = fmt.Fprintf(w, "change %x\n", ch.Hash)
	_, _ = fmt.Fprintf(w, "  actor   %s\n", ch.Actor)
	_, _ = fmt.Fprintf(w, "  ops     %d..%d\n", ch.Start, ch.End())
	_, _ = fmt.Fprintf(w, "  time    %s\n", ch.Time.Format(time.RFC3339Nano))
	if ch.Message != "" {
		_, _ = fmt.Fprintf(w, "  message %q\n", ch.Message)
	}
	for i := range ch.Ops {
		_, _ = fmt.Fprintf(w, "  %s\n", ch.Ops[i].String())
	}
}

// Hex is a hex dump of the encoded change.
func (ch *Change) Hex() string {
	return hex.Dump(ch.Raw)
}

// Dump writes the version, heads, pending changes and the projection.
func (doc *Document) Dump(w io.Writer) {
	doc.lock.RLock()
	defer doc.lock.RUnlock()
	_, _ = fmt.Fprintf(w, "actor   %s\n", doc.actor)
	_, _ = fmt.Fprintf(w, "version %s\n", doc.log.clock.vv)
	_, _ = fmt.Fprintf(w, "heads  ")
	for _, id := range doc.log.headIDs() {
		_, _ = fmt.Fprintf(w, " %s", id)
	}
	_, _ = fmt.Fprintf(w, "\nops %d changes %d pending %d\n",
		len(doc.log.ops), len(doc.log.changes), doc.pending.len())
	for _, key := range doc.keys() {
		_, _ = fmt.Fprintf(w, "  %q: %s\n", key, doc.log.proj.view[key])
	}
}
