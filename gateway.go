package mimir

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// Gateway implements ChainClient against the chain gateway http service,
// which holds the node connections and runtime metadata of every network.
type Gateway struct {
	restClient
}

func NewGateway(baseURL string) *Gateway {
	return NewGatewayWithClient(newRestClient(baseURL))
}

func NewGatewayWithClient(client *resty.Client) *Gateway {
	return &Gateway{restClient{client: client}}
}

func (g *Gateway) QueryProxies(ctx context.Context, network string, addr Address) ([]ProxyEdge, error) {
	var edges []ProxyEdge
	_, err := g.do(ctx, http.MethodGet, "/chains/{network}/{address}/proxies", func(r *resty.Request) {
		r.SetPathParams(pathParams(network, addr))
	}, &edges)

	if isNotFound(err) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return edges, nil
}

// QueryMultisigMembers returns nil when addr is not a known multisig. The
// members are checked against addr by deriving the multisig address.
func (g *Gateway) QueryMultisigMembers(ctx context.Context, network string, addr Address) (*MultisigInfo, error) {
	var body MultisigInfo
	_, err := g.do(ctx, http.MethodGet, "/chains/{network}/{address}/multisig", func(r *resty.Request) {
		r.SetPathParams(pathParams(network, addr))
	}, &body)

	if isNotFound(err) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	if len(body.Members) == 0 {
		return nil, nil
	}

	info, err := NewMultisigInfo(body.Members, body.Threshold)
	if err != nil {
		return nil, fmt.Errorf("multisig %s: %w", addr, err)
	}

	if derived, err := info.Address(); err == nil && derived != addr {
		slog.Warn("gateway: multisig members do not derive the queried address",
			slog.String("network", network),
			slog.String("address", addr.String()),
			slog.String("derived", derived.String()),
		)

		return nil, fmt.Errorf("multisig %s: members derive %s", addr, derived)
	}

	return info, nil
}

func (g *Gateway) DecodeCall(ctx context.Context, network, callHex string) (*Call, error) {
	var call Call
	if _, err := g.do(ctx, http.MethodPost, "/chains/{network}/calls/decode", func(r *resty.Request) {
		r.SetPathParam("network", network)
		r.SetBody(map[string]string{"data": callHex})
	}, &call); err != nil {
		return nil, err
	}

	if call.Data == "" {
		call.Data = callHex
	}

	return &call, nil
}

func (g *Gateway) QueryMultisigApprovals(ctx context.Context, network string, addr Address, callHash string) ([]Address, error) {
	var body struct {
		Approvals []Address `json:"approvals"`
	}

	_, err := g.do(ctx, http.MethodGet, "/chains/{network}/{address}/multisig/{call_hash}/approvals", func(r *resty.Request) {
		r.SetPathParams(pathParams(network, addr))
		r.SetPathParam("call_hash", callHash)
	}, &body)

	if isNotFound(err) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return body.Approvals, nil
}
