package mimir

import (
	"context"
)

// ChainClient is the chain rpc collaborator.
type ChainClient interface {
	QueryProxies(ctx context.Context, network string, addr Address) ([]ProxyEdge, error)
	// QueryMultisigMembers returns nil when addr is not a known multisig.
	QueryMultisigMembers(ctx context.Context, network string, addr Address) (*MultisigInfo, error)
	DecodeCall(ctx context.Context, network, callHex string) (*Call, error)
	QueryMultisigApprovals(ctx context.Context, network string, addr Address, callHash string) ([]Address, error)
}

type DetailsFetcher interface {
	AccountDetails(ctx context.Context, network string, addr Address) (*AccountDetails, error)
}

// ChainSource serves graph lookups from the chain client, with pure proxy
// metadata coming from the backend account details.
type ChainSource struct {
	Chain   ChainClient
	Details DetailsFetcher
}

func (s ChainSource) Multisig(ctx context.Context, network string, addr Address) (*MultisigInfo, error) {
	return s.Chain.QueryMultisigMembers(ctx, network, addr)
}

func (s ChainSource) Proxies(ctx context.Context, network string, addr Address) ([]ProxyEdge, error) {
	return s.Chain.QueryProxies(ctx, network, addr)
}

func (s ChainSource) Pure(ctx context.Context, network string, addr Address) (*PureInfo, error) {
	if s.Details == nil {
		return nil, nil
	}

	details, err := s.Details.AccountDetails(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	if details == nil || details.Type != AccountPure || details.Creator.IsZero() {
		return nil, nil
	}

	created := details.CreatedNetwork
	if created == "" {
		created = network
	}

	return &PureInfo{
		Creator:        details.Creator,
		Network:        created,
		Height:         details.CreatedHeight,
		ExtrinsicIndex: details.CreatedExtrinsicIndex,
		ProxyType:      details.ProxyType,
	}, nil
}
