// Package dataserver exposes the provider operations over HTTP so a browser UI can call
// them as JSON: POST /{operation}/{resource} with the operation params as body.
package dataserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/edgeflare/dataprovider/pkg/httputil"
	"github.com/edgeflare/dataprovider/pkg/httputil/middleware"
	"github.com/edgeflare/dataprovider/pkg/provider"
	"github.com/edgeflare/dataprovider/pkg/rest"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds the size of an operation request body.
const MaxBodyBytes = 1 << 20

const readHeaderTimeout = 10 * time.Second

// Dispatcher runs one named operation with raw JSON params. *provider.Provider implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, op provider.Operation, resource string, raw []byte) (any, error)
}

type Options struct {
	Logger *zap.Logger
	// BasicAuth protects the operation routes when non-empty (user -> password).
	BasicAuth map[string]string
	// CORS overrides the default CORS policy.
	CORS *middleware.CORSOptions
	// TLSConfig switches ListenAndServe to HTTPS. It must carry the server certificate.
	TLSConfig *tls.Config
	// PathPrefix mounts the operation routes below a path, e.g. /api.
	PathPrefix string
}

type Server struct {
	router     *httputil.Router
	dispatcher Dispatcher
	logger     *zap.Logger
	tls        bool
}

// New wires the routes and middleware of the bridge around d.
func New(d Dispatcher, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	routerOpts := []httputil.RouterOptions{
		httputil.WithServerOptions(func(srv *http.Server) { srv.ReadHeaderTimeout = readHeaderTimeout }),
	}
	if opts.TLSConfig != nil {
		routerOpts = append(routerOpts, httputil.WithTLSConfig(opts.TLSConfig))
	}

	s := &Server{
		router:     httputil.NewRouter(routerOpts...),
		dispatcher: d,
		logger:     logger,
		tls:        opts.TLSConfig != nil,
	}

	s.router.Use(
		middleware.RequestID,
		middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: logger}),
		middleware.Recover,
		middleware.CORSWithOptions(opts.CORS),
	)
	s.router.HandleFunc("GET /healthz", s.handleHealth)

	api := s.router.Group(strings.TrimRight(opts.PathPrefix, "/"))
	api.HandleFunc("OPTIONS /{operation}/{resource...}", func(http.ResponseWriter, *http.Request) {})
	if len(opts.BasicAuth) > 0 {
		api.Use(middleware.VerifyBasicAuth(middleware.BasicAuthCreds(opts.BasicAuth)))
	}
	api.HandleFunc("POST /{operation}/{resource...}", s.handleOperation)
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router.Handler()
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting data provider server", zap.String("addr", addr), zap.Bool("tls", s.tls))
	return s.router.ListenAndServe(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.Text(w, http.StatusOK, httputil.RequestID(r))
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	op := provider.Operation(r.PathValue("operation"))
	resource := r.PathValue("resource")
	if !op.Valid() {
		httputil.Error(w, http.StatusNotFound, "unknown operation "+string(op))
		return
	}
	if resource == "" {
		httputil.Error(w, http.StatusBadRequest, "resource is required")
		return
	}

	var params json.RawMessage
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := httputil.BindOrError(r, w, &params); err != nil {
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), op, resource, params)
	if err != nil {
		status := StatusFor(err)
		log := middleware.LoggerFromContext(r.Context())
		if status >= http.StatusInternalServerError {
			log.Error("operation failed", zap.String("operation", string(op)), zap.String("resource", resource), zap.Error(err))
		} else {
			log.Info("operation rejected", zap.String("operation", string(op)), zap.String("resource", resource), zap.Error(err))
		}
		httputil.Error(w, status, err.Error())
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// StatusFor maps an operation error to the HTTP status returned to the UI.
func StatusFor(err error) int {
	var statusErr *httputil.StatusError
	switch {
	case errors.Is(err, rest.ErrDecode),
		errors.Is(err, rest.ErrMalformedFilter),
		errors.Is(err, provider.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrUnknownOperation):
		return http.StatusNotFound
	case errors.Is(err, rest.ErrUnsupportedQuery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rest.ErrMissingContentRange), errors.Is(err, rest.ErrInvalidContentRange),
		errors.Is(err, provider.ErrNoResponse):
		return http.StatusBadGateway
	case errors.As(err, &statusErr):
		return statusErr.StatusCode
	}
	return http.StatusInternalServerError
}
