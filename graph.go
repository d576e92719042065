package mimir

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/zyedidia/generic/mapset"
	"golang.org/x/sync/errgroup"
)

const DefaultGraphDepth = 16

// Graph is an immutable snapshot of the accounts able to act for Root.
// Refreshing builds a new Graph instead of touching this one.
type Graph struct {
	Network string    `json:"network"`
	Root    *Account  `json:"root"`
	BuiltAt time.Time `json:"built_at"`
}

type GraphBuilder struct {
	src      AccountSource
	maxDepth int
}

func NewGraphBuilder(src AccountSource) *GraphBuilder {
	return &GraphBuilder{
		src:      src,
		maxDepth: DefaultGraphDepth,
	}
}

// WithMaxDepth returns a builder that stops expanding below depth; deeper
// nodes are reported unresolved.
func (b *GraphBuilder) WithMaxDepth(depth int) *GraphBuilder {
	return &GraphBuilder{
		src:      b.src,
		maxDepth: depth,
	}
}

// Build expands root into its member and delegate graph. A lookup failure
// only marks the affected node unresolved; a delegation cycle aborts the
// build with a *CyclicGraphError.
func (b *GraphBuilder) Build(ctx context.Context, network string, root Address) (*Graph, error) {
	acc, err := b.expand(ctx, network, root, nil)
	if err != nil {
		return nil, err
	}

	return &Graph{
		Network: network,
		Root:    acc,
		BuiltAt: time.Now(),
	}, nil
}

func (b *GraphBuilder) expand(ctx context.Context, network string, addr Address, path []Address) (*Account, error) {
	if containsAddress(path, addr) {
		return nil, &CyclicGraphError{
			Network: network,
			Address: addr,
			Path:    append([]Address(nil), path...),
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acc := &Account{
		Address: addr,
		Network: network,
		Type:    AccountEOA,
	}

	if len(path) >= b.maxDepth {
		acc.Type = AccountUnresolved
		acc.Reason = "max depth reached"
		return acc, nil
	}

	var (
		multisig *MultisigInfo
		proxies  []ProxyEdge
		pure     *PureInfo
		errs     [3]error
		lookups  errgroup.Group
	)

	lookups.Go(func() error {
		multisig, errs[0] = b.src.Multisig(ctx, network, addr)
		return nil
	})

	lookups.Go(func() error {
		proxies, errs[1] = b.src.Proxies(ctx, network, addr)
		return nil
	})

	lookups.Go(func() error {
		pure, errs[2] = b.src.Pure(ctx, network, addr)
		return nil
	})

	_ = lookups.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case multisig != nil:
		acc.Type = AccountMultisig
		acc.Threshold = multisig.Threshold
	case pure != nil:
		acc.Type = AccountPure
		acc.Pure = pure
	}

	next := make([]Address, len(path), len(path)+1)
	copy(next, path)
	next = append(next, addr)

	g, ctx := errgroup.WithContext(ctx)

	if multisig != nil {
		acc.Members = make([]*Account, len(multisig.Members))
		for i, member := range multisig.Members {
			g.Go(func() error {
				child, err := b.expand(ctx, network, member, next)
				if err != nil {
					return err
				}

				acc.Members[i] = child
				return nil
			})
		}
	}

	edges := delegatorEdges(addr, proxies)
	acc.Delegates = make([]*Delegate, len(edges))
	for i, edge := range edges {
		g.Go(func() error {
			child, err := b.expand(ctx, network, edge.Delegate, next)
			if err != nil {
				return err
			}

			acc.Delegates[i] = &Delegate{Edge: edge, Account: child}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := errors.Join(errs[:]...); err != nil {
		slog.Warn("graph: lookup failed, node unresolved",
			slog.String("network", network),
			slog.String("address", addr.String()),
			slog.Any("err", err),
		)

		acc.Type = AccountUnresolved
		acc.Reason = err.Error()
	}

	return acc, nil
}

// delegatorEdges keeps the edges delegating addr, filling in a missing
// delegator and dropping edges that belong to another account.
func delegatorEdges(addr Address, proxies []ProxyEdge) []ProxyEdge {
	edges := make([]ProxyEdge, 0, len(proxies))
	for _, edge := range proxies {
		if edge.Delegator.IsZero() {
			edge.Delegator = addr
		}

		if edge.Delegator != addr || edge.Delegate.IsZero() {
			continue
		}

		edges = append(edges, edge)
	}

	return edges
}

// Walk visits the graph depth first. Returning false skips the children
// of the visited account.
func (g *Graph) Walk(fn func(acc *Account, depth int) bool) {
	var walk func(acc *Account, depth int)
	walk = func(acc *Account, depth int) {
		if acc == nil || !fn(acc, depth) {
			return
		}

		for _, m := range acc.Members {
			walk(m, depth+1)
		}

		for _, d := range acc.Delegates {
			walk(d.Account, depth+1)
		}
	}

	walk(g.Root, 0)
}

func (g *Graph) Find(addr Address) *Account {
	var found *Account
	g.Walk(func(acc *Account, _ int) bool {
		if found != nil {
			return false
		}

		if acc.Address == addr {
			found = acc
			return false
		}

		return true
	})

	return found
}

// Signers lists the keyed accounts that can ultimately sign for the root:
// every resolved EOA reachable through members or delegates.
func (g *Graph) Signers() []Address {
	set := mapset.New[Address]()
	g.Walk(func(acc *Account, _ int) bool {
		if acc.Type == AccountEOA {
			set.Put(acc.Address)
		}

		return true
	})

	var signers []Address
	set.Each(func(addr Address) {
		signers = append(signers, addr)
	})

	sort.Slice(signers, func(i, j int) bool {
		return signers[i] < signers[j]
	})

	return signers
}

func (g *Graph) CanSign(addr Address) bool {
	return containsAddress(g.Signers(), addr)
}

func (g *Graph) Unresolved() []*Account {
	var nodes []*Account
	g.Walk(func(acc *Account, _ int) bool {
		if acc.Type == AccountUnresolved {
			nodes = append(nodes, acc)
		}

		return true
	})

	return nodes
}

// Accounts returns the distinct addresses of the graph with their type.
func (g *Graph) Accounts() map[Address]AccountType {
	accounts := map[Address]AccountType{}
	g.Walk(func(acc *Account, _ int) bool {
		if _, ok := accounts[acc.Address]; !ok {
			accounts[acc.Address] = acc.Type
		}

		return true
	})

	return accounts
}
