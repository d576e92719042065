package mimir

import (
	"context"
	"fmt"
)

type AccountType uint8

const (
	AccountEOA AccountType = iota
	AccountMultisig
	AccountPure
	// AccountUnresolved marks a node whose lookups failed; its signer
	// capability cannot be determined.
	AccountUnresolved
)

func (t AccountType) String() string {
	switch t {
	case AccountMultisig:
		return "multisig"
	case AccountPure:
		return "pure"
	case AccountUnresolved:
		return "unresolved"
	default:
		return "eoa"
	}
}

func (t AccountType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *AccountType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "eoa", "":
		*t = AccountEOA
	case "multisig":
		*t = AccountMultisig
	case "pure":
		*t = AccountPure
	case "unresolved":
		*t = AccountUnresolved
	default:
		return fmt.Errorf("unknown account type %q", b)
	}

	return nil
}

// ProxyEdge lets Delegate act on behalf of Delegator with the capability
// scope ProxyType, after Delay blocks.
type ProxyEdge struct {
	Delegator Address `json:"delegator"`
	Delegate  Address `json:"delegate"`
	ProxyType string  `json:"proxy_type"`
	Delay     uint32  `json:"delay"`
}

type MultisigInfo struct {
	Members   []Address `json:"members"`
	Threshold uint16    `json:"threshold"`
}

func NewMultisigInfo(members []Address, threshold uint16) (*MultisigInfo, error) {
	sorted := SortAddresses(members)
	if len(sorted) == 0 {
		return nil, ErrEmptyMembers
	}

	if threshold == 0 || int(threshold) > len(sorted) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidThreshold, threshold, len(sorted))
	}

	return &MultisigInfo{
		Members:   sorted,
		Threshold: threshold,
	}, nil
}

func (m *MultisigInfo) Address() (Address, error) {
	return DeriveMultisigAddress(m.Members, m.Threshold)
}

func (m *MultisigInfo) IsMember(addr Address) bool {
	return containsAddress(m.Members, addr)
}

func (m *MultisigInfo) IsReady(approvals []Address) bool {
	return IsReady(m.Threshold, m.Members, approvals)
}

// PureInfo describes how a keyless pure proxy was created.
type PureInfo struct {
	Creator        Address `json:"creator"`
	Network        string  `json:"network"`
	Height         uint32  `json:"height"`
	ExtrinsicIndex uint32  `json:"extrinsic_index"`
	ProxyType      string  `json:"proxy_type,omitempty"`
}

type Delegate struct {
	Edge    ProxyEdge `json:"edge"`
	Account *Account  `json:"account"`
}

// Account is a node of the account graph. Members and Delegates point to
// the accounts that can act for it.
type Account struct {
	Address   Address     `json:"address"`
	Network   string      `json:"network"`
	Type      AccountType `json:"type"`
	Threshold uint16      `json:"threshold,omitempty"`
	Members   []*Account  `json:"members,omitempty"`
	Delegates []*Delegate `json:"delegates,omitempty"`
	Pure      *PureInfo   `json:"pure,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

func (a *Account) IsMultisig() bool {
	return a.Threshold > 0 && len(a.Members) > 0
}

func (a *Account) MemberAddresses() []Address {
	addrs := make([]Address, 0, len(a.Members))
	for _, m := range a.Members {
		addrs = append(addrs, m.Address)
	}

	return addrs
}

// AccountSource answers the three lookups the graph builder needs. A nil
// result with a nil error means "not that kind of account".
type AccountSource interface {
	Multisig(ctx context.Context, network string, addr Address) (*MultisigInfo, error)
	Proxies(ctx context.Context, network string, addr Address) ([]ProxyEdge, error)
	Pure(ctx context.Context, network string, addr Address) (*PureInfo, error)
}
