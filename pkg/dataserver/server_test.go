package dataserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgeflare/dataprovider/internal/testutil/pgrsttest"
	"github.com/edgeflare/dataprovider/pkg/httputil"
	"github.com/edgeflare/dataprovider/pkg/provider"
	"github.com/edgeflare/dataprovider/pkg/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newBridge(t *testing.T, opts Options) (*pgrsttest.Server, *httptest.Server) {
	t.Helper()
	gw := pgrsttest.New()
	gw.AddTable("posts", []string{"id"},
		map[string]any{"id": 1, "title": "Hello"},
		map[string]any{"id": 2, "title": "World"},
	)
	gwSrv := pgrsttest.Start(t, gw)

	p := provider.New(gwSrv.URL, httputil.NewClient(httputil.DefaultClientConfig()))
	srv := httptest.NewServer(New(p, opts).Handler())
	t.Cleanup(srv.Close)
	return gw, srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func TestOperations(t *testing.T) {
	_, srv := newBridge(t, Options{})

	resp, out := post(t, srv.URL+"/getList/posts", `{"pagination":{"page":1,"perPage":1},"sort":{"field":"id","order":"DESC"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), out["total"])
	assert.Equal(t, []any{map[string]any{"id": float64(2), "title": "World"}}, out["data"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp, out = post(t, srv.URL+"/create/posts", `{"data":{"title":"New"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"id": float64(3), "title": "New"}, out["data"])

	resp, out = post(t, srv.URL+"/deleteMany/posts", `{"ids":[1,3]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, []any{float64(1), float64(3)}, out["data"])
}

func TestErrorMapping(t *testing.T) {
	gw, srv := newBridge(t, Options{})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown operation", "/explode/posts", `{}`, http.StatusNotFound},
		{"invalid params", "/getOne/posts", `{"id":`, http.StatusBadRequest},
		{"invalid meta", "/getOne/posts", `{"id":1,"meta":{"headers":42}}`, http.StatusBadRequest},
		{"unsupported query", "/getMany/rpc/things", `{"ids":[1,2]}`, http.StatusUnprocessableEntity},
		{"gateway status", "/getOne/posts", `{"id":99}`, http.StatusNotAcceptable},
		{"unknown table", "/getOne/nothing", `{"id":1}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := post(t, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, out["message"])
		})
	}

	t.Run("empty body", func(t *testing.T) {
		resp, out := post(t, srv.URL+"/getList/posts", ``)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.NotEmpty(t, out["message"])
	})

	t.Run("missing content range", func(t *testing.T) {
		gw.OmitContentRange(true)
		t.Cleanup(func() { gw.OmitContentRange(false) })

		resp, out := post(t, srv.URL+"/getList/posts", `{}`)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Contains(t, out["message"], "Content-Range header is missing")
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&rest.DecodeError{ID: "x", Err: errors.New("bad")}, http.StatusBadRequest},
		{&rest.MalformedFilterError{Reason: "deep"}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", rest.ErrUnsupportedQuery), http.StatusUnprocessableEntity},
		{rest.ErrInvalidContentRange, http.StatusBadGateway},
		{provider.ErrNoResponse, http.StatusBadGateway},
		{&httputil.StatusError{StatusCode: http.StatusConflict}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestBasicAuthAndHealth(t *testing.T) {
	_, srv := newBridge(t, Options{BasicAuth: map[string]string{"admin": "secret"}})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, resp.Header.Get("X-Request-Id"), string(body))

	resp, _ = post(t, srv.URL+"/getOne/posts", `{"id":1}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/getOne/posts", bytes.NewBufferString(`{"id":1}`))
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodOptions, srv.URL+"/getOne/posts", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "Content-Range")
}

type panicking struct{}

func (panicking) Dispatch(context.Context, provider.Operation, string, []byte) (any, error) {
	panic("boom")
}

func TestRecoverAndLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	srv := httptest.NewServer(New(panicking{}, Options{Logger: zap.New(core)}).Handler())
	t.Cleanup(srv.Close)

	resp, out := post(t, srv.URL+"/getList/posts", `{}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", out["message"])

	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
	require.Equal(t, 1, logs.FilterMessage("response").Len())
	assert.Equal(t, int64(http.StatusInternalServerError), logs.FilterMessage("response").All()[0].ContextMap()["status"])
}

func TestPathPrefix(t *testing.T) {
	_, srv := newBridge(t, Options{PathPrefix: "/api/"})

	resp, out := post(t, srv.URL+"/api/getOne/posts", `{"id":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello", out["data"].(map[string]any)["title"])

	unprefixed, err := http.Post(srv.URL+"/getOne/posts", "application/json", bytes.NewBufferString(`{"id":1}`))
	require.NoError(t, err)
	unprefixed.Body.Close()
	assert.Equal(t, http.StatusNotFound, unprefixed.StatusCode)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestListenAndServeTLS(t *testing.T) {
	// borrow a self-signed certificate and a client trusting it
	certSrv := httptest.NewUnstartedServer(http.NotFoundHandler())
	certSrv.StartTLS()
	tlsConfig := certSrv.TLS.Clone()
	client := certSrv.Client()
	t.Cleanup(certSrv.Close)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s := New(panicking{}, Options{TLSConfig: tlsConfig})
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(addr) }()

	require.Eventually(t, func() bool {
		resp, err := client.Get("https://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}
