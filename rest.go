package mimir

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func newRestClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second)
}

type restClient struct {
	client *resty.Client
}

// do executes one request. Transport failures are returned as is; a
// non-2xx answer becomes a *ResponseError.
func (c restClient) do(ctx context.Context, method, url string, setup func(r *resty.Request), out any) (*resty.Response, error) {
	var body errorBody
	r := c.client.R().SetContext(ctx).SetError(&body)
	if out != nil {
		r.SetResult(out)
	}

	if setup != nil {
		setup(r)
	}

	resp, err := r.Execute(method, url)
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		msg := body.Message
		if msg == "" {
			msg = body.Error
		}

		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}

		return resp, &ResponseError{StatusCode: resp.StatusCode(), Message: msg}
	}

	return resp, nil
}

func isNotFound(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

func pathParams(network string, addr Address) map[string]string {
	return map[string]string{
		"network": network,
		"address": addr.String(),
	}
}
