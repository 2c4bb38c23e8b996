package dokki

import (
	"context"

	"github.com/drpcorg/dokki/protocol"
	"github.com/drpcorg/dokki/utils"
)

// AddHose subscribes a named queue to every change committed here
// from now on. A hose that falls behind by more than HoseLimit bytes
// is closed and dropped, its consumer sees ErrOverflow.
func (doc *Document) AddHose(name string) *utils.Queue[protocol.Records] {
	q := utils.NewQueue[protocol.Records](doc.opts.HoseLimit, doc.opts.HoseBatch)
	if old, loaded := doc.hoses.LoadAndStore(name, q); loaded {
		_ = old.Close()
	}
	return q
}

func (doc *Document) RemoveHose(name string) {
	if q, ok := doc.hoses.LoadAndDelete(name); ok {
		_ = q.Close()
	}
}

func (doc *Document) Hoses() (names []string) {
	doc.hoses.Range(func(name string, _ *utils.Queue[protocol.Records]) bool {
		names = append(names, name)
		return true
	})
	return
}

func (doc *Document) broadcast(ctx context.Context, blob []byte) {
	ctx = utils.WithDefaultArgs(ctx, "actor", doc.actor.Short())
	doc.hoses.Range(func(name string, q *utils.Queue[protocol.Records]) bool {
		if err := q.Drain(ctx, protocol.Records{blob}); err != nil {
			doc.opts.Logger.WarnCtx(ctx, "hose dropped", "hose", name, "err", err)
			doc.hoses.Delete(name)
			_ = q.Close()
		}
		return true
	})
}
