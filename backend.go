package mimir

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cast"
)

// Backend is the client of the wallet backend service.
type Backend struct {
	restClient
}

func NewBackend(baseURL string) *Backend {
	return NewBackendWithClient(newRestClient(baseURL))
}

func NewBackendWithClient(client *resty.Client) *Backend {
	return &Backend{restClient{client: client}}
}

// AccountDetails returns nil when the backend does not know addr.
func (b *Backend) AccountDetails(ctx context.Context, network string, addr Address) (*AccountDetails, error) {
	var details AccountDetails
	_, err := b.do(ctx, http.MethodGet, "/chains/{network}/{address}/details", func(r *resty.Request) {
		r.SetPathParams(pathParams(network, addr))
	}, &details)

	if isNotFound(err) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &details, nil
}

func (b *Backend) SafetyCheck(ctx context.Context, network, callHex string) (*SafetyLevel, error) {
	var level SafetyLevel
	if _, err := b.do(ctx, http.MethodPost, "/chains/{network}/safety-check", func(r *resty.Request) {
		r.SetPathParam("network", network)
		r.SetBody(map[string]string{"method": callHex})
	}, &level); err != nil {
		return nil, err
	}

	return &level, nil
}

func (b *Backend) ListTransactions(ctx context.Context, network string, addr Address, q TxQuery) (*TxPage, error) {
	var page TxPage
	if _, err := b.do(ctx, http.MethodGet, "/chains/{network}/{address}/transactions", func(r *resty.Request) {
		r.SetPathParams(pathParams(network, addr))
		r.SetQueryParam("status", q.Status.String())
		r.SetQueryParam("limit", cast.ToString(normalizeLimit(q.Limit)))
		if q.Cursor != "" {
			r.SetQueryParam("next_cursor", q.Cursor)
		}
	}, &page); err != nil {
		return nil, err
	}

	for _, tx := range page.Transactions {
		if tx == nil {
			return nil, errors.New("backend returned an empty transaction")
		}

		if tx.Network == "" {
			tx.Network = network
		}
	}

	return &page, nil
}
