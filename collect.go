package mimir

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zyedidia/generic/mapset"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTxLimit = 20
	MaxTxLimit     = 500
)

// Scope is one account on one network.
type Scope struct {
	Network string  `json:"network"`
	Address Address `json:"address"`
}

func (s Scope) String() string {
	return s.Network + ":" + s.Address.String()
}

func ParseScope(s string) (Scope, error) {
	network, addr, ok := strings.Cut(s, ":")
	if !ok || network == "" {
		return Scope{}, fmt.Errorf("invalid scope %q", s)
	}

	a, err := Decode(addr)
	if err != nil {
		return Scope{}, err
	}

	return Scope{Network: network, Address: a}, nil
}

type TxQuery struct {
	Status StatusFilter
	Limit  int
	// Cursor is the id of the last transaction of the previous page.
	Cursor string
}

type TxPage struct {
	Transactions []*Transaction `json:"transactions"`
	NextCursor   string         `json:"next_cursor,omitempty"`
	HasMore      bool           `json:"has_more"`
}

type TransactionLister interface {
	ListTransactions(ctx context.Context, network string, addr Address, q TxQuery) (*TxPage, error)
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > MaxTxLimit {
		return DefaultTxLimit
	}

	return limit
}

// Collector fetches one page of transactions for many scopes at once.
type Collector struct {
	lister TransactionLister
}

func NewCollector(lister TransactionLister) *Collector {
	return &Collector{lister: lister}
}

// Collect fetches every scope concurrently. A failing scope is reported on
// its own Source, counts as fetched and never affects the others. When progress is set it is
// called with a fresh copy of all sources each time one of them finishes,
// unfinished ones marked Fetching. Progress calls never overlap.
func (c *Collector) Collect(ctx context.Context, scopes []Scope, q TxQuery, progress func([]Source)) []Source {
	var (
		mu      sync.Mutex
		sources = make([]Source, len(scopes))
		g       errgroup.Group
	)

	for i, scope := range scopes {
		sources[i] = Source{
			Network:  scope.Network,
			Address:  scope.Address,
			Fetching: true,
		}
	}

	for i, scope := range scopes {
		g.Go(func() error {
			src := c.collect(ctx, scope, q)

			mu.Lock()
			defer mu.Unlock()

			sources[i] = src
			if progress != nil {
				progress(append([]Source(nil), sources...))
			}

			return nil
		})
	}

	_ = g.Wait()
	return sources
}

func (c *Collector) collect(ctx context.Context, scope Scope, q TxQuery) Source {
	src := Source{
		Network: scope.Network,
		Address: scope.Address,
	}

	limit := normalizeLimit(q.Limit)
	cursor := q.Cursor
	seen := mapset.New[int64]()

	for {
		page, err := c.lister.ListTransactions(ctx, scope.Network, scope.Address, TxQuery{
			Status: q.Status,
			Limit:  limit - len(src.Transactions),
			Cursor: cursor,
		})

		if err != nil {
			slog.Error("collect: list transactions failed",
				slog.String("scope", scope.String()),
				slog.Any("err", err),
			)

			src.Err = err
			src.Fetched = true
			src.HasMore = false
			return src
		}

		for _, tx := range page.Transactions {
			if seen.Has(tx.ID) {
				continue
			}

			seen.Put(tx.ID)
			src.Transactions = append(src.Transactions, tx)
		}

		src.HasMore = page.HasMore
		src.NextCursor = page.NextCursor

		if len(src.Transactions) >= limit || !page.HasMore || page.NextCursor == "" || page.NextCursor == cursor {
			break
		}

		cursor = page.NextCursor
	}

	src.Fetched = true
	return src
}
