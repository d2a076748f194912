// Package provider maps the generic CRUD operations of an admin UI onto a PostgREST-style
// gateway: it builds each request with pkg/rest, sends it through a Transport and
// reshapes the response records.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edgeflare/dataprovider/pkg/httputil"
	"github.com/edgeflare/dataprovider/pkg/metrics"
	"github.com/edgeflare/dataprovider/pkg/rest"
	"go.uber.org/zap"
)

// Transport sends one request to the gateway. Errors are returned to the caller unchanged.
type Transport interface {
	Send(ctx context.Context, req *httputil.Request) (*httputil.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *httputil.Request) (*httputil.Response, error)

func (f TransportFunc) Send(ctx context.Context, req *httputil.Request) (*httputil.Response, error) {
	return f(ctx, req)
}

// Provider implements the data provider operations for one gateway. It holds no mutable
// state and is safe for concurrent use.
type Provider struct {
	transport Transport
	logger    *zap.Logger
	apiURL    string
	opts      Options
}

// New returns a Provider for the gateway at apiURL.
func New(apiURL string, transport Transport, opts ...Option) *Provider {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.SchemaFunc == nil {
		o.SchemaFunc = func() string { return "" }
	}
	if o.PrimaryKeys == nil {
		o.PrimaryKeys = rest.Keys{}
	}

	return &Provider{
		transport: transport,
		logger:    o.Logger,
		apiURL:    strings.TrimRight(apiURL, "/"),
		opts:      o,
	}
}

// PrimaryKey returns the key configured for resource.
func (p *Provider) PrimaryKey(resource string) rest.PrimaryKey {
	return p.opts.PrimaryKeys.Resolve(resource)
}

// call describes one outgoing request before it is resolved against the gateway.
type call struct {
	body     any
	query    rest.Params
	meta     *Meta
	method   string
	resource string
	accept   string
	prefer   *rest.Prefer
}

func (p *Provider) url(resource string, query rest.Params) string {
	u := p.apiURL + "/" + resource
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// build resolves c into a request: default headers first, then meta headers, then the
// profile header for the schema.
func (p *Provider) build(c call) *httputil.Request {
	h := http.Header{}
	if c.accept != "" {
		h.Set("Accept", c.accept)
	}
	if s := c.prefer.String(); s != "" {
		h.Set(rest.HeaderPrefer, s)
	}
	if c.method != http.MethodGet && c.method != http.MethodHead {
		h.Set("Content-Type", rest.MediaTypeJSON)
	}
	if c.meta != nil {
		for k, v := range c.meta.Headers {
			h.Set(k, v)
		}
	}
	if schema := p.schema(c.meta); schema != "" {
		h.Set(rest.ProfileHeader(c.method), schema)
	}

	return &httputil.Request{
		Method: c.method,
		URL:    p.url(c.resource, c.query),
		Header: h,
		Body:   c.body,
	}
}

// schema picks the per-call override when present, else the configured supplier.
func (p *Provider) schema(m *Meta) string {
	if m != nil && m.Schema != nil {
		return *m.Schema
	}
	return p.opts.SchemaFunc()
}

// ErrNoResponse is returned when a Transport reports neither a response nor an error.
var ErrNoResponse = errors.New("transport returned no response")

// do sends c and decodes the JSON body. Transport errors are returned unwrapped.
func (p *Provider) do(ctx context.Context, c call) (*httputil.Response, any, error) {
	resp, err := p.transport.Send(ctx, p.build(c))
	if err != nil {
		return resp, nil, err
	}
	if resp == nil {
		return nil, nil, ErrNoResponse
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp, nil, &httputil.StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	body, err := resp.JSON()
	if err != nil {
		return resp, nil, err
	}
	return resp, body, nil
}

// keyQuery wraps rest.KeyQuery, logging batch queries that cannot be expressed.
func (p *Provider) keyQuery(op Operation, resource string, key rest.PrimaryKey, ids []any, m *Meta) (rest.Params, error) {
	q, err := rest.KeyQuery(key, resource, ids, m.Selection())
	if err != nil {
		if errors.Is(err, rest.ErrUnsupportedQuery) {
			metrics.UnsupportedQueries.WithLabelValues(string(op), resource).Inc()
			p.logger.Error("PostgREST rpc endpoints are not views, no query generation for multiple key values implemented",
				zap.String("operation", string(op)),
				zap.String("resource", resource),
				zap.Int("ids", len(ids)))
		}
		return nil, err
	}
	return q, nil
}

// listQuery assembles pagination, filters, order and select for the list operations.
// Filters are applied after pagination so a filter named offset or limit wins.
func (p *Provider) listQuery(key rest.PrimaryKey, pg *Pagination, sort *Sort, filter map[string]any, m *Meta) (rest.Params, error) {
	q := rest.Params{}
	if pg != nil && pg.PerPage > 0 {
		page := max(pg.Page, 1)
		q.Set(rest.ParamOffset, fmt.Sprint((page-1)*pg.PerPage))
		q.Set(rest.ParamLimit, fmt.Sprint(pg.PerPage))
	}

	parsed, err := rest.ParseFilters(filter, p.opts.DefaultListOp, m.Selection())
	if err != nil {
		return nil, err
	}
	q.Merge(parsed.Filter)

	if sort != nil && sort.Field != "" {
		nulls := rest.ResolveNulls(p.opts.NullsOrder, m.NullsOverride())
		q.Set(rest.ParamOrder, rest.OrderBy(sort.Field, sortOrder(sort.Order), key, nulls))
	}
	if parsed.Select != "" {
		q.Set(rest.ParamSelect, parsed.Select)
	}
	return q, nil
}

func sortOrder(order string) string {
	if order == "" {
		return "asc"
	}
	return order
}

func observe(op Operation, resource string, start time.Time, err *error) {
	metrics.ObserveOperation(string(op), resource, start, *err)
}

func skipped(op Operation) {
	metrics.SkippedRequests.WithLabelValues(string(op)).Inc()
}
