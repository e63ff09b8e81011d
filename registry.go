package ctcp

import (
	"log/slog"
	"sync"

	"github.com/rs/xid"

	"github.com/soypat/ctcp/internal"
)

// Registry is the process-wide set of live connections and their shared
// timer driver: a single goroutine calling Tick periodically advances
// every registered connection's retransmit and TIME_WAIT timers in turn,
// rather than only ever progressing the first connection in its list.
type Registry struct {
	logger

	mu    sync.Mutex
	conns map[xid.ID]*Connection
	order []xid.ID // stable iteration order, reused across ticks
}

// NewRegistry creates an empty connection registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger: logger{log: log},
		conns:  make(map[xid.ID]*Connection),
	}
}

// Register assigns a fresh connection ID and adds c to the registry.
func (r *Registry) Register(c *Connection) xid.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := xid.New()
	c.ID = id
	r.conns[id] = c
	r.order = append(r.order, id)
	r.info("ctcp: connection registered", slog.String("conn", id.String()), slog.Int("total", len(r.conns)))
	return id
}

// Deregister removes a connection by ID, if present.
func (r *Registry) Deregister(id xid.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return
	}
	delete(r.conns, id)
	r.compactOrder()
}

// compactOrder drops IDs from r.order that no longer have a live
// connection. A deregistered ID is zeroed in place first so
// internal.DeleteZeroed can compact the backing array without a second
// slice allocation.
func (r *Registry) compactOrder() {
	for i, id := range r.order {
		if _, ok := r.conns[id]; !ok {
			r.order[i] = xid.ID{}
		}
	}
	r.order = internal.DeleteZeroed(r.order)
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Tick drives every registered connection's make-progress routine once,
// in registration order, and removes any connection that concludes
// TIME_WAIT or is otherwise destroyed during the pass. Intended to be
// called from a single goroutine on a cfg.TickPeriod cadence. A
// connection's own mutex (see Connection) serializes Tick against a
// concurrent OnReadable/OnSegment for the same connection, but the
// callbacks still assume they never run two-at-once for themselves.
func (r *Registry) Tick(now int64) (reaped []xid.ID) {
	r.mu.Lock()
	ids := append([]xid.ID(nil), r.order...)
	r.mu.Unlock()

	for _, id := range ids {
		r.mu.Lock()
		c, ok := r.conns[id]
		r.mu.Unlock()
		if !ok {
			continue
		}
		if c.MakeProgress(now) {
			reaped = append(reaped, id)
		}
	}
	if len(reaped) == 0 {
		return nil
	}
	r.mu.Lock()
	for _, id := range reaped {
		delete(r.conns, id)
	}
	r.compactOrder()
	r.mu.Unlock()
	r.debug("ctcp: reaped connections", slog.Int("count", len(reaped)), slog.Int("remaining", len(r.conns)))
	return reaped
}

// Dispatch routes an inbound datagram to the connection identified by id,
// a convenience wrapper over Connection.OnSegment for callers that key
// connections by id rather than holding the *Connection directly (for
// instance a UDP daemon demultiplexing by source address via some
// out-of-band id lookup, see cmd/ctcpd).
func (r *Registry) Dispatch(id xid.ID, raw []byte, actualLen int) error {
	r.mu.Lock()
	c, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return c.OnSegment(raw, actualLen)
}
