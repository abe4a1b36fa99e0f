package world

import (
	"errors"
	"sync"
)

var ErrConnClosed = errors.New("connection closed")

// Conn is the send side of one live viewer. Delivery runs through a
// buffered queue drained by a single writer goroutine in the transport,
// so per-connection ordering is monotonic by construction.
type Conn struct {
	id   string
	out  chan []byte
	done chan struct{}
	once sync.Once

	mu     sync.Mutex // serializes Push; guards lastTS
	lastTS float64
}

func NewConn(id string, queue int) *Conn {
	if queue <= 0 {
		queue = 8
	}
	return &Conn{
		id:   id,
		out:  make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string            { return c.id }
func (c *Conn) Out() <-chan []byte    { return c.out }
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close is idempotent and never closes the out channel; the writer
// goroutine selects on Done instead, so a concurrent Push cannot panic.
func (c *Conn) Close() { c.once.Do(func() { close(c.done) }) }

// Push enqueues one frame, dropping the oldest queued frame when the
// viewer is behind. A missed tick self-heals on the next one.
//
// ts is the frame's snapshot timestamp. A frame not newer than the last
// accepted one is discarded: out-of-cadence pushes race the tick loop,
// and without the check a viewer could receive an older snapshot after
// a newer one.
func (c *Conn) Push(b []byte, ts float64) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts <= c.lastTS {
		return nil
	}
	c.lastTS = ts
	select {
	case c.out <- b:
		return nil
	default:
	}
	// Drop one.
	select {
	case <-c.out:
	default:
	}
	select {
	case c.out <- b:
	default:
	}
	return nil
}

// Registry tracks currently connected viewers. It is the only structure
// shared between the tick loop and the connection handlers, and is safe
// for concurrent Add/Remove while a ForEach is in progress: iteration
// walks a copy taken under the lock, so a viewer removed mid-broadcast
// cannot corrupt it or be delivered to twice, and a viewer added
// mid-broadcast is picked up on the next tick at the latest.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Add registers a connection; it reports false for a duplicate id.
func (r *Registry) Add(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.id]; ok {
		return false
	}
	r.conns[c.id] = c
	return true
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *Registry) ForEach(fn func(*Conn)) {
	r.mu.Lock()
	snapshot := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		snapshot = append(snapshot, c)
	}
	r.mu.Unlock()
	for _, c := range snapshot {
		fn(c)
	}
}

// CloseAll closes and deregisters every connection; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
