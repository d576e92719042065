package mimir

import (
	"context"
	"fmt"

	"github.com/zyedidia/generic/mapset"
)

// ApprovalCount counts the distinct members among approvals. Approvals
// from non-members are ignored.
func ApprovalCount(approvals, members []Address) int {
	set := mapset.New[Address]()
	for _, m := range members {
		set.Put(m)
	}

	approved := mapset.New[Address]()
	for _, a := range approvals {
		if set.Has(a) {
			approved.Put(a)
		}
	}

	return approved.Size()
}

func IsReady(threshold uint16, members, approvals []Address) bool {
	return threshold > 0 && ApprovalCount(approvals, members) >= int(threshold)
}

// Progress is the approval state of one call hash on a multisig account.
type Progress struct {
	CallHash  string    `json:"call_hash"`
	Threshold uint16    `json:"threshold"`
	Members   []Address `json:"members"`
	// Proposer submitted the first approval.
	Proposer  Address   `json:"proposer,omitempty"`
	Approvals []Address `json:"approvals"`
	Count     int       `json:"count"`
	Ready     bool      `json:"ready"`
}

// Track builds the progress of callHash from approvals in the order they
// were collected; the first member approval is the proposer.
func Track(info *MultisigInfo, callHash string, approvals []Address) *Progress {
	p := &Progress{
		CallHash:  callHash,
		Threshold: info.Threshold,
		Members:   info.Members,
	}

	for _, addr := range approvals {
		p = p.Approve(addr)
	}

	return p
}

// Approve returns the progress after addr approved. The receiver is left
// untouched; duplicates and non-members return an unchanged copy.
func (p *Progress) Approve(addr Address) *Progress {
	next := *p
	if !containsAddress(p.Members, addr) || containsAddress(p.Approvals, addr) {
		return &next
	}

	next.Approvals = make([]Address, 0, len(p.Approvals)+1)
	next.Approvals = append(next.Approvals, p.Approvals...)
	next.Approvals = append(next.Approvals, addr)
	if next.Proposer.IsZero() {
		next.Proposer = addr
	}

	next.Count = len(next.Approvals)
	next.Ready = next.Threshold > 0 && next.Count >= int(next.Threshold)
	return &next
}

// Needed is the number of approvals still missing.
func (p *Progress) Needed() int {
	if n := int(p.Threshold) - p.Count; n > 0 {
		return n
	}

	return 0
}

// Missing lists the members that have not approved yet.
func (p *Progress) Missing() []Address {
	var missing []Address
	for _, m := range p.Members {
		if !containsAddress(p.Approvals, m) {
			missing = append(missing, m)
		}
	}

	return missing
}

// ApprovalTracker reads multisig state from the chain.
type ApprovalTracker struct {
	chain ChainClient
}

func NewApprovalTracker(chain ChainClient) *ApprovalTracker {
	return &ApprovalTracker{chain: chain}
}

func (t *ApprovalTracker) Progress(ctx context.Context, network string, multisig Address, callHash string) (*Progress, error) {
	info, err := t.chain.QueryMultisigMembers(ctx, network, multisig)
	if err != nil {
		return nil, fmt.Errorf("query multisig members: %w", err)
	}

	if info == nil {
		return nil, ErrNotMultisig
	}

	approvals, err := t.chain.QueryMultisigApprovals(ctx, network, multisig, callHash)
	if err != nil {
		return nil, fmt.Errorf("query multisig approvals: %w", err)
	}

	return Track(info, callHash, approvals), nil
}
