// Package auth keeps the credentials of an admin UI session against the gateway: it logs in
// through an rpc endpoint, stores the returned token and derives the user's role from it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/edgeflare/dataprovider/pkg/httputil"
	"github.com/edgeflare/dataprovider/pkg/provider"
	"github.com/edgeflare/dataprovider/pkg/rest"
	"github.com/edgeflare/dataprovider/pkg/util"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized is returned by CheckError for 401 and 403 responses.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoSession is returned when no credentials are stored.
	ErrNoSession = errors.New("not logged in")
	// ErrNoRole is returned when the stored credentials carry no role claim.
	ErrNoRole = errors.New("no role claim in session")
)

const (
	DefaultLoginPath    = "rpc/login"
	DefaultLogoutPath   = "rpc/logout"
	DefaultRoleClaimKey = ".role"
)

type Options struct {
	Logger       *zap.Logger
	Store        TokenStore
	LoginPath    string
	LogoutPath   string
	RoleClaimKey string
}

type Option func(*Options)

func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithStore replaces the default in-memory token store.
func WithStore(s TokenStore) Option { return func(o *Options) { o.Store = s } }

func WithLoginPath(path string) Option { return func(o *Options) { o.LoginPath = path } }

func WithLogoutPath(path string) Option { return func(o *Options) { o.LogoutPath = path } }

// WithRoleClaimKey sets the jq-style path of the role inside the token claims.
func WithRoleClaimKey(key string) Option { return func(o *Options) { o.RoleClaimKey = key } }

// Provider implements login, logout and permission checks for one gateway.
type Provider struct {
	transport provider.Transport
	logger    *zap.Logger
	store     TokenStore
	apiURL    string
	opts      Options
}

// New returns a Provider sending its requests through transport.
func New(apiURL string, transport provider.Transport, opts ...Option) *Provider {
	o := Options{
		LoginPath:    DefaultLoginPath,
		LogoutPath:   DefaultLogoutPath,
		RoleClaimKey: DefaultRoleClaimKey,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Store == nil {
		o.Store = NewMemoryStore()
	}

	return &Provider{
		transport: transport,
		logger:    o.Logger,
		store:     o.Store,
		apiURL:    strings.TrimRight(apiURL, "/"),
		opts:      o,
	}
}

// Login posts the credentials to the login endpoint and stores the returned session.
// The response is either {"token": "<jwt>"} or a user object read as the claims.
func (p *Provider) Login(ctx context.Context, username, password string) error {
	body, err := p.post(ctx, p.opts.LoginPath, map[string]any{"email": username, "password": password})
	if err != nil {
		p.logger.Info("login failed", zap.String("user", username), zap.Error(err))
		return err
	}

	data, ok := body.(map[string]any)
	if !ok {
		return fmt.Errorf("login: expected a JSON object in response, got %T", body)
	}

	session := Session{Claims: data}
	if token, ok := data["token"].(string); ok && token != "" {
		session.Token = token
		claims := map[string]any{}
		if _, err := oidc.ParseToken(token, &claims); err != nil {
			p.logger.Debug("login token is not a JWT, keeping response as claims", zap.Error(err))
		} else {
			session.Claims = claims
		}
	}

	p.store.Store(session)
	p.logger.Debug("logged in", zap.String("user", username))
	return nil
}

// Logout calls the logout endpoint and forgets the session once it succeeded.
func (p *Provider) Logout(ctx context.Context) error {
	if _, err := p.post(ctx, p.opts.LogoutPath, map[string]any{}); err != nil {
		return err
	}
	p.store.Clear()
	return nil
}

// CheckAuth returns nil when a session is stored.
func (p *Provider) CheckAuth() error {
	if _, ok := p.store.Load(); !ok {
		return ErrNoSession
	}
	return nil
}

// CheckError inspects an error returned by a gateway call. A 401 or 403 status clears the
// session and yields ErrUnauthorized; anything else yields nil.
func (p *Provider) CheckError(err error) error {
	var statusErr *httputil.StatusError
	if !errors.As(err, &statusErr) {
		return nil
	}
	return p.checkStatus(statusErr.StatusCode)
}

func (p *Provider) checkStatus(status int) error {
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return nil
	}
	p.store.Clear()
	p.logger.Info("gateway rejected credentials, session cleared", zap.Int("status", status))
	return fmt.Errorf("%w: status %d", ErrUnauthorized, status)
}

// GetPermissions returns the role claim of the stored session.
func (p *Provider) GetPermissions() (any, error) {
	session, ok := p.store.Load()
	if !ok {
		return nil, ErrNoSession
	}
	role, err := util.Jq(session.Claims, p.opts.RoleClaimKey)
	if err != nil || role == nil || role == "" {
		return nil, ErrNoRole
	}
	return role, nil
}

// Token returns the stored bearer token, if any.
func (p *Provider) Token() (string, bool) {
	session, ok := p.store.Load()
	if !ok || session.Token == "" {
		return "", false
	}
	return session.Token, true
}

func (p *Provider) post(ctx context.Context, path string, body any) (any, error) {
	h := http.Header{}
	h.Set("Accept", rest.MediaTypeObject)
	h.Set("Content-Type", rest.MediaTypeJSON)
	h.Set(rest.HeaderPrefer, (&rest.Prefer{Return: "representation"}).String())

	resp, err := p.transport.Send(ctx, &httputil.Request{
		Method: http.MethodPost,
		URL:    p.apiURL + "/" + strings.TrimLeft(path, "/"),
		Header: h,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httputil.StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp.JSON()
}
