package mimir

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	GraphDepth  int
	CacheTTL    time.Duration
	JobTTL      time.Duration
	JobInterval time.Duration
	Issuer      string
	Secret      string
}

func (c Config) withDefaults() Config {
	if c.GraphDepth <= 0 {
		c.GraphDepth = DefaultGraphDepth
	}

	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Minute
	}

	if c.JobTTL <= 0 {
		c.JobTTL = 5 * time.Minute
	}

	if c.JobInterval <= 0 {
		c.JobInterval = 10 * time.Second
	}

	return c
}

// BackendClient is the indexer side of the service.
type BackendClient interface {
	DetailsFetcher
	SafetyChecker
	TransactionLister
}

type Server struct {
	db  *badger.DB
	cfg Config

	chain      ChainClient
	cache      *CachedSource
	store      *Store
	lister     TransactionLister
	details    DetailsFetcher
	builder    *GraphBuilder
	resolver   *CallResolver
	tracker    *ApprovalTracker
	classifier *SafetyClassifier
	collector  *Collector
}

func NewServer(
	db *badger.DB,
	chain ChainClient,
	backend BackendClient,
	cfg Config,
	opts ...SafetyOption,
) *Server {
	cfg = cfg.withDefaults()
	src := NewCachedSource(ChainSource{Chain: chain, Details: backend}, cfg.CacheTTL)

	return &Server{
		db:         db,
		cfg:        cfg,
		chain:      chain,
		cache:      src,
		store:      NewStore(db),
		lister:     backend,
		details:    backend,
		builder:    NewGraphBuilder(src).WithMaxDepth(cfg.GraphDepth),
		resolver:   NewCallResolver(chain),
		tracker:    NewApprovalTracker(chain),
		classifier: NewSafetyClassifier(backend, opts...),
		collector:  NewCollector(backend),
	}
}

func (s *Server) Run(ctx context.Context) error {
	var g errgroup.Group

	g.Go(func() error {
		return s.HandlePendingJobs(ctx)
	})

	g.Go(func() error {
		return s.PurgeCache(ctx)
	})

	return g.Wait()
}

// PurgeCache drops stale lookups every cache ttl until ctx is done.
func (s *Server) PurgeCache(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.CacheTTL):
		}

		if n := s.cache.Purge(); n > 0 {
			slog.Debug("purge cache", slog.Int("count", n))
		}
	}
}
