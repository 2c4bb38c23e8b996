package utils

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("[dokki] feed/drain queue is closed")
var ErrOverflow = errors.New("[dokki] feed/drain queue is overflowed")

// Queue is a bounded feed/drain queue of records. Drain never blocks:
// a writer that would exceed the byte limit overflows the queue, which
// is then dead for writing. Feed blocks until there is something to
// read, the queue is closed or ctx is done.
type Queue[T ~[][]byte] struct {
	mx         sync.Mutex
	accum      T
	size       int
	maxSize    int
	batchSize  int
	closed     bool
	overflowed bool

	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewQueue[T ~[][]byte](limit, batchSize int) *Queue[T] {
	return &Queue[T]{
		maxSize:   limit,
		batchSize: batchSize,
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (q *Queue[T]) Close() error {
	q.mx.Lock()
	defer q.mx.Unlock()
	q.closed = true
	q.once.Do(func() { close(q.done) })
	return nil
}

// Size is the number of bytes waiting to be fed.
func (q *Queue[T]) Size() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return q.size
}

func (q *Queue[T]) Drain(ctx context.Context, recs T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mx.Lock()
	defer q.mx.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.overflowed {
		return ErrOverflow
	}
	add := 0
	for _, rec := range recs {
		add += len(rec)
	}
	if q.maxSize > 0 && q.size+add > q.maxSize {
		q.overflowed = true
		q.once.Do(func() { close(q.done) })
		return ErrOverflow
	}
	q.accum = append(q.accum, recs...)
	q.size += add
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Feed returns a batch of at least one record; once the queue is
// closed (or overflowed) and empty, it returns the reason.
func (q *Queue[T]) Feed(ctx context.Context) (recs T, err error) {
	for {
		q.mx.Lock()
		if len(q.accum) > 0 {
			read, payload := 0, 0
			for _, rec := range q.accum {
				if read > 0 && payload+len(rec) > q.batchSize {
					break
				}
				payload += len(rec)
				read++
			}
			recs = append(recs, q.accum[:read]...)
			q.accum = q.accum[read:]
			q.size -= payload
			if len(q.accum) > 0 {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			q.mx.Unlock()
			return recs, nil
		}
		switch {
		case q.overflowed:
			err = ErrOverflow
		case q.closed:
			err = ErrClosed
		}
		q.mx.Unlock()
		if err != nil {
			return nil, err
		}
		select {
		case <-q.signal:
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
