package auth

import (
	"context"
	"net/http"

	"github.com/edgeflare/dataprovider/pkg/httputil"
	"github.com/edgeflare/dataprovider/pkg/provider"
)

// BearerTransport adds the session token to every request sent through Next and drops the
// session when the gateway answers 401 or 403.
type BearerTransport struct {
	Next provider.Transport
	Auth *Provider
}

func (t *BearerTransport) Send(ctx context.Context, req *httputil.Request) (*httputil.Response, error) {
	out := *req
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	if token, ok := t.Auth.Token(); ok {
		out.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.Next.Send(ctx, &out)
	if resp != nil {
		_ = t.Auth.checkStatus(resp.StatusCode)
	} else if err != nil {
		_ = t.Auth.CheckError(err)
	}
	return resp, err
}
