package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Fanout reads one source feed and copies every payload to its taps, so that
// many subscriptions share a single database listener or consumer group.
// A tap whose buffer is full misses the payload.
type Fanout struct {
	src Feed
	lg  *zap.Logger

	mu     sync.Mutex
	taps   map[uint64]*Tap
	next   uint64
	closed bool

	running atomic.Bool
	dropped atomic.Uint64
}

// NewFanout creates a Fanout over src. Call Run to start reading.
func NewFanout(src Feed, lg *zap.Logger) *Fanout {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Fanout{src: src, lg: lg, taps: make(map[uint64]*Tap)}
}

// Run reads the source until ctx is done or the source fails. Taps are
// closed when Run returns.
func (f *Fanout) Run(ctx context.Context) error {
	f.running.Store(true)
	defer f.running.Store(false)
	defer f.closeTaps()

	for {
		payload, err := f.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		f.publish(payload)
	}
}

// Running reports whether Run is reading the source.
func (f *Fanout) Running() bool {
	return f.running.Load()
}

// Dropped counts payloads skipped because a tap was full.
func (f *Fanout) Dropped() uint64 {
	return f.dropped.Load()
}

// Tap registers a new consumer with a buffer of size buf. A tap opened after
// the fanout stopped is already closed.
func (f *Fanout) Tap(buf int) *Tap {
	t := &Tap{ch: make(chan []byte, max(buf, 1)), owner: f}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(t.ch)
		t.detached = true
		return t
	}
	t.id = f.next
	f.next++
	f.taps[t.id] = t
	return t
}

func (f *Fanout) publish(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.taps {
		select {
		case t.ch <- payload:
		default:
			f.dropped.Add(1)
			f.lg.Debug("Dropping change feed payload for slow tap", zap.Uint64("tap", t.id))
		}
	}
}

func (f *Fanout) detach(t *Tap) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t.detached {
		return
	}
	t.detached = true
	delete(f.taps, t.id)
	close(t.ch)
}

func (f *Fanout) closeTaps() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for id, t := range f.taps {
		t.detached = true
		close(t.ch)
		delete(f.taps, id)
	}
}

// Tap is one consumer of a Fanout. It implements Feed.
type Tap struct {
	id       uint64
	ch       chan []byte
	owner    *Fanout
	detached bool // guarded by owner.mu
}

var _ Feed = (*Tap)(nil)

// Next returns the next payload. It returns ErrClosed after Close or once
// the fanout has stopped.
func (t *Tap) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p, ok := <-t.ch:
		if !ok {
			return nil, ErrClosed
		}
		return p, nil
	}
}

// Close unregisters the tap.
func (t *Tap) Close() {
	t.owner.detach(t)
}
