package mimir

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Snapshot is the state a Session publishes for its scope. Snapshots are
// never modified once published.
type Snapshot struct {
	Scope    Scope  `json:"scope"`
	Version  uint64 `json:"version"`
	Graph    *Graph `json:"graph,omitempty"`
	GraphErr string `json:"graph_error,omitempty"`
	Feed     *Feed  `json:"feed,omitempty"`
}

// Session holds the account a caller is looking at. Work started for a
// scope is cancelled when the scope changes or another Refresh starts, and
// its late results are dropped.
type Session struct {
	builder   *GraphBuilder
	collector *Collector
	filter    Filter
	query     TxQuery

	mu      sync.Mutex
	scope   Scope
	gen     uint64
	cancel  context.CancelFunc
	subs    map[int]func(*Snapshot)
	nextSub int

	// pending notifications, delivered in version order by one goroutine
	// at a time
	pending    []notification
	delivering bool

	current atomic.Pointer[Snapshot]
}

type notification struct {
	snap *Snapshot
	subs []func(*Snapshot)
}

func NewSession(builder *GraphBuilder, collector *Collector, query TxQuery, filter Filter) *Session {
	s := &Session{
		builder:   builder,
		collector: collector,
		query:     query,
		filter:    filter,
		subs:      map[int]func(*Snapshot){},
	}

	s.current.Store(&Snapshot{})
	return s
}

func (s *Session) Current() *Snapshot {
	return s.current.Load()
}

func (s *Session) Scope() Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// Subscribe registers fn for every published snapshot. Calls to fn never
// overlap and arrive in version order.
func (s *Session) Subscribe(fn func(*Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SetScope switches the session to scope, cancelling in-flight work of the
// previous scope.
func (s *Session) SetScope(scope Scope) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	s.gen++
	s.scope = scope
	gen := s.gen
	s.mu.Unlock()

	s.publish(gen, func(Snapshot) Snapshot {
		return Snapshot{Scope: scope}
	})
}

func (s *Session) begin(ctx context.Context) (context.Context, Scope, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	s.gen++
	ctx, s.cancel = context.WithCancel(ctx)
	return ctx, s.scope, s.gen
}

// Refresh rebuilds the account graph of the current scope and collects
// the transactions of every account in it, publishing each stage.
func (s *Session) Refresh(ctx context.Context) error {
	ctx, scope, gen := s.begin(ctx)
	if scope.Address.IsZero() {
		return errors.New("session has no scope")
	}

	graph, err := s.builder.Build(ctx, scope.Network, scope.Address)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	s.publish(gen, func(prev Snapshot) Snapshot {
		prev.Graph = graph
		prev.GraphErr = ""
		if err != nil {
			prev.GraphErr = err.Error()
		}

		return prev
	})

	scopes := ScopesOf(scope, graph)
	s.collector.Collect(ctx, scopes, s.query, func(sources []Source) {
		feed := Aggregate(sources, s.filter, GroupOptions{})
		s.publish(gen, func(prev Snapshot) Snapshot {
			prev.Feed = feed
			return prev
		})
	})

	if err != nil {
		return err
	}

	return ctx.Err()
}

// publish replaces the current snapshot unless gen is stale.
func (s *Session) publish(gen uint64, next func(Snapshot) Snapshot) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}

	prev := *s.current.Load()
	snap := next(prev)
	snap.Version = prev.Version + 1
	s.current.Store(&snap)

	subs := make([]func(*Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}

	s.pending = append(s.pending, notification{snap: &snap, subs: subs})
	if s.delivering {
		s.mu.Unlock()
		return true
	}

	s.delivering = true
	s.mu.Unlock()

	s.deliver()
	return true
}

// deliver drains pending notifications until the queue is empty.
func (s *Session) deliver() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.delivering = false
			s.mu.Unlock()
			return
		}

		n := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		for _, fn := range n.subs {
			fn(n.snap)
		}
	}
}

// ScopesOf lists root and every multisig or pure account of graph, the
// accounts transactions are recorded for.
func ScopesOf(root Scope, graph *Graph) []Scope {
	scopes := []Scope{root}
	if graph == nil {
		return scopes
	}

	seen := map[Address]bool{root.Address: true}
	graph.Walk(func(acc *Account, _ int) bool {
		if seen[acc.Address] {
			return true
		}

		if acc.Type == AccountMultisig || acc.Type == AccountPure {
			seen[acc.Address] = true
			scopes = append(scopes, Scope{Network: graph.Network, Address: acc.Address})
		}

		return true
	})

	return scopes
}
