package mimir

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

var errUnavailable = errors.New("unavailable")

type fakeChain struct {
	mu        sync.Mutex
	multisigs map[Address]*MultisigInfo
	proxies   map[Address][]ProxyEdge
	approvals map[string][]Address
	calls     map[string]*Call
	fail      map[Address]error
	hits      map[Address]int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		multisigs: map[Address]*MultisigInfo{},
		proxies:   map[Address][]ProxyEdge{},
		approvals: map[string][]Address{},
		calls:     map[string]*Call{},
		fail:      map[Address]error{},
		hits:      map[Address]int{},
	}
}

func (c *fakeChain) addMultisig(threshold uint16, members ...Address) Address {
	info, err := NewMultisigInfo(members, threshold)
	if err != nil {
		panic(err)
	}

	addr, err := info.Address()
	if err != nil {
		panic(err)
	}

	c.multisigs[addr] = info
	return addr
}

func (c *fakeChain) addProxy(delegator, delegate Address) {
	c.proxies[delegator] = append(c.proxies[delegator], ProxyEdge{
		Delegator: delegator,
		Delegate:  delegate,
		ProxyType: "Any",
	})
}

func (c *fakeChain) hit(addr Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits[addr]++
	return c.fail[addr]
}

func (c *fakeChain) QueryProxies(_ context.Context, _ string, addr Address) ([]ProxyEdge, error) {
	if err := c.hit(addr); err != nil {
		return nil, err
	}

	return c.proxies[addr], nil
}

func (c *fakeChain) QueryMultisigMembers(_ context.Context, _ string, addr Address) (*MultisigInfo, error) {
	if err := c.hit(addr); err != nil {
		return nil, err
	}

	return c.multisigs[addr], nil
}

func (c *fakeChain) DecodeCall(_ context.Context, _ string, callHex string) (*Call, error) {
	call, ok := c.calls[callHex]
	if !ok {
		return nil, &ResponseError{StatusCode: 400, Message: "cannot decode"}
	}

	cp := *call
	return &cp, nil
}

func (c *fakeChain) QueryMultisigApprovals(_ context.Context, _ string, addr Address, callHash string) ([]Address, error) {
	if err := c.hit(addr); err != nil {
		return nil, err
	}

	return c.approvals[callHash], nil
}

type fakeBackend struct {
	mu      sync.Mutex
	details map[Address]*AccountDetails
	txs     map[Scope][]*Transaction
	fail    map[Scope]error
	levels  map[string]*SafetyLevel
	checks  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		details: map[Address]*AccountDetails{},
		txs:     map[Scope][]*Transaction{},
		fail:    map[Scope]error{},
		levels:  map[string]*SafetyLevel{},
	}
}

func (b *fakeBackend) AccountDetails(_ context.Context, _ string, addr Address) (*AccountDetails, error) {
	return b.details[addr], nil
}

func (b *fakeBackend) SafetyCheck(_ context.Context, _ string, callHex string) (*SafetyLevel, error) {
	b.mu.Lock()
	b.checks++
	b.mu.Unlock()

	level, ok := b.levels[callHex]
	if !ok {
		return nil, errUnavailable
	}

	return level, nil
}

// ListTransactions pages by index, the cursor being the offset.
func (b *fakeBackend) ListTransactions(_ context.Context, network string, addr Address, q TxQuery) (*TxPage, error) {
	scope := Scope{Network: network, Address: addr}
	if err := b.fail[scope]; err != nil {
		return nil, err
	}

	var all []*Transaction
	for _, tx := range b.txs[scope] {
		if q.Status.match(tx.Status) {
			all = append(all, tx)
		}
	}

	offset := 0
	if q.Cursor != "" {
		for i, tx := range all {
			if fakeCursor(tx) == q.Cursor {
				offset = i + 1
			}
		}
	}

	limit := normalizeLimit(q.Limit)
	end := min(offset+limit, len(all))

	page := &TxPage{Transactions: all[offset:end]}
	if end < len(all) {
		page.HasMore = true
		page.NextCursor = fakeCursor(all[end-1])
	}

	return page, nil
}

func fakeCursor(tx *Transaction) string {
	return strconv.FormatInt(tx.ID, 10)
}
