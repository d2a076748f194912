// Package pgrsttest runs an in-memory PostgREST-style gateway for tests. It understands
// the subset of the dialect the provider emits: column filters, and/or groups, order,
// limit/offset, select with embeds, Prefer and the profile headers.
package pgrsttest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/edgeflare/dataprovider/pkg/httputil"
	"github.com/edgeflare/dataprovider/pkg/rest"
)

// DefaultSchema is used when a request carries no profile header.
const DefaultSchema = "public"

// RPCFunc answers a call to /rpc/<name> with the given arguments.
type RPCFunc func(args url.Values) []map[string]any

// Request is a recorded incoming request.
type Request struct {
	Header http.Header
	Query  url.Values
	Method string
	Path   string
	Body   []byte
}

type relation struct {
	target  string
	local   string
	foreign string
	many    bool
}

type table struct {
	rels   map[string]relation
	key    []string
	rows   []map[string]any
	nextID int64
}

// Server is the fake gateway. The zero value is not usable; call New.
type Server struct {
	router           *httputil.Router
	tables           map[string]*table
	rpcs             map[string]RPCFunc
	requests         []Request
	mu               sync.RWMutex
	omitContentRange bool
}

// New returns an empty gateway.
func New() *Server {
	s := &Server{
		router: httputil.NewRouter(),
		tables: map[string]*table{},
		rpcs:   map[string]RPCFunc{},
	}
	s.router.Use(s.record)
	s.router.HandleFunc("GET /rpc/{fn}", s.handleRPC)
	s.router.HandleFunc("POST /rpc/{fn}", s.handleRPC)
	s.router.HandleFunc("GET /{resource}", s.handleGet)
	s.router.HandleFunc("POST /{resource}", s.handlePost)
	s.router.HandleFunc("PATCH /{resource}", s.handlePatch)
	s.router.HandleFunc("DELETE /{resource}", s.handleDelete)
	return s
}

// Start serves s on a local listener closed when the test ends.
func Start(t testing.TB, s *Server) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.Handler().ServeHTTP(w, r)
}

// AddTable creates or replaces a table. name may be qualified as schema.name. Rows are
// normalized through JSON so numbers read back as json.Number.
func (s *Server) AddTable(name string, key []string, rows ...map[string]any) {
	t := &table{key: key, rels: map[string]relation{}, nextID: 1}
	for _, row := range rows {
		n := normalize(row)
		t.rows = append(t.rows, n)
		if len(key) == 1 {
			if id, err := strconv.ParseInt(rest.FormatValue(n[key[0]]), 10, 64); err == nil && id >= t.nextID {
				t.nextID = id + 1
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[qualify(name)] = t
}

// AddRelation lets resource embed target as name. A many relation embeds the list of
// target rows whose foreign column equals the local column; otherwise a single row.
func (s *Server) AddRelation(resource, name, target, local, foreign string, many bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[qualify(resource)]
	if !ok {
		panic("pgrsttest: unknown table " + resource)
	}
	t.rels[name] = relation{target: target, local: local, foreign: foreign, many: many}
}

// AddRPC registers a function served under /rpc/name.
func (s *Server) AddRPC(name string, fn RPCFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpcs[name] = fn
}

// OmitContentRange stops the gateway from sending Content-Range on reads.
func (s *Server) OmitContentRange(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitContentRange = omit
}

// Rows returns a copy of the rows of a table.
func (s *Server) Rows(name string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[qualify(name)]
	if !ok {
		return nil
	}
	out := make([]map[string]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = maps.Clone(row)
	}
	return out
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.requests)
}

// LastRequest returns the most recent request, or the zero Request.
func (s *Server) LastRequest() Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.requests) == 0 {
		return Request{}
	}
	return s.requests[len(s.requests)-1]
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*table, string, bool) {
	name := profile(r) + "." + r.PathValue("resource")
	t, ok := s.tables[name]
	if !ok {
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("relation %q does not exist", name))
		return nil, "", false
	}
	return t, profile(r), true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, schema, ok := s.lookup(w, r)
	if !ok {
		return
	}
	where, err := parseWhere(r.URL.Query(), false)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondRead(w, r, schema, t, filterRows(t.rows, where))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fn, ok := s.rpcs[r.PathValue("fn")]
	if !ok {
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("function %q does not exist", r.PathValue("fn")))
		return
	}

	query := r.URL.Query()
	args := url.Values{}
	for k, vs := range query {
		if rest.IsReservedParam(k) || k == rest.ParamAnd || k == rest.ParamOr {
			continue
		}
		for _, v := range vs {
			if _, ok := parseExpr(v); !ok {
				args.Add(k, v)
			}
		}
	}
	if r.Method == http.MethodPost {
		body, err := decodeBody(r)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		if obj, ok := body.(map[string]any); ok {
			for k, v := range obj {
				args.Set(k, rest.FormatValue(v))
			}
		}
	}

	where, err := parseWhere(query, true)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	rows := make([]map[string]any, 0)
	for _, row := range fn(args) {
		rows = append(rows, normalize(row))
	}
	s.respondRead(w, r, profile(r), nil, filterRows(rows, where))
}

// respondRead orders, paginates and projects rows, then writes them with Content-Range.
func (s *Server) respondRead(w http.ResponseWriter, r *http.Request, schema string, t *table, rows []map[string]any) {
	query := r.URL.Query()
	sortRows(rows, rest.ParseOrder(query.Get(rest.ParamOrder)))

	total := len(rows)
	offset := atoi(query.Get(rest.ParamOffset), 0)
	limit := atoi(query.Get(rest.ParamLimit), total)
	page := window(rows, offset, limit)

	out, err := s.project(schema, t, page, query.Get(rest.ParamSelect))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.omitContentRange {
		prefer := rest.ParsePrefer(r.Header.Get(rest.HeaderPrefer))
		w.Header().Set(rest.HeaderContentRange, contentRange(offset, len(out), total, prefer.WantsCountExact()))
	}
	writeRows(w, r, http.StatusOK, out)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, schema, ok := s.lookup(w, r)
	if !ok {
		return
	}
	body, err := decodeBody(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	var incoming []map[string]any
	switch v := body.(type) {
	case map[string]any:
		incoming = []map[string]any{v}
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				httputil.Error(w, http.StatusBadRequest, "expected an array of objects")
				return
			}
			incoming = append(incoming, obj)
		}
	default:
		httputil.Error(w, http.StatusBadRequest, "expected a JSON object or array")
		return
	}

	created := make([]map[string]any, 0, len(incoming))
	for _, row := range incoming {
		if len(t.key) == 1 && row[t.key[0]] == nil {
			row[t.key[0]] = json.Number(strconv.FormatInt(t.nextID, 10))
			t.nextID++
		}
		if t.find(row) >= 0 {
			httputil.Error(w, http.StatusConflict, "duplicate key value violates unique constraint")
			return
		}
		t.rows = append(t.rows, row)
		created = append(created, row)
	}
	s.respondWrite(w, r, schema, t, http.StatusCreated, created)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, schema, ok := s.lookup(w, r)
	if !ok {
		return
	}
	body, err := decodeBody(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, ok := body.(map[string]any)
	if !ok {
		httputil.Error(w, http.StatusBadRequest, "expected a JSON object")
		return
	}
	where, err := parseWhere(r.URL.Query(), false)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	matched := filterRows(t.rows, where)
	if !singular(w, r, len(matched)) {
		return
	}
	for _, row := range matched {
		maps.Copy(row, patch)
	}
	s.respondWrite(w, r, schema, t, http.StatusOK, matched)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, schema, ok := s.lookup(w, r)
	if !ok {
		return
	}
	where, err := parseWhere(r.URL.Query(), false)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	matched := filterRows(t.rows, where)
	if !singular(w, r, len(matched)) {
		return
	}
	t.rows = slices.DeleteFunc(t.rows, func(row map[string]any) bool {
		return slices.ContainsFunc(matched, func(m map[string]any) bool { return sameRow(m, row) })
	})
	s.respondWrite(w, r, schema, t, http.StatusOK, matched)
}

// respondWrite answers a mutation: the affected rows with return=representation,
// otherwise an empty body.
func (s *Server) respondWrite(w http.ResponseWriter, r *http.Request, schema string, t *table, status int, rows []map[string]any) {
	prefer := rest.ParsePrefer(r.Header.Get(rest.HeaderPrefer))
	if !prefer.WantsRepresentation() {
		if status == http.StatusOK {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
		return
	}
	out, err := s.project(schema, t, rows, r.URL.Query().Get(rest.ParamSelect))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	writeRows(w, r, status, out)
}

// singular rejects writes that would touch other than one row when a single object is
// requested.
func singular(w http.ResponseWriter, r *http.Request, n int) bool {
	if wantsObject(r) && n != 1 {
		httputil.Error(w, http.StatusNotAcceptable, "JSON object requested, multiple (or no) rows returned")
		return false
	}
	return true
}

func writeRows(w http.ResponseWriter, r *http.Request, status int, rows []map[string]any) {
	if wantsObject(r) {
		if len(rows) != 1 {
			httputil.Error(w, http.StatusNotAcceptable, "JSON object requested, multiple (or no) rows returned")
			return
		}
		httputil.JSON(w, status, rows[0])
		return
	}
	httputil.JSON(w, status, rows)
}

func (t *table) find(row map[string]any) int {
	if len(t.key) == 0 {
		return -1
	}
	return slices.IndexFunc(t.rows, func(other map[string]any) bool {
		for _, col := range t.key {
			if rest.FormatValue(other[col]) != rest.FormatValue(row[col]) {
				return false
			}
		}
		return true
	})
}

// sameRow compares map identity; rows are shared between the table and a match set.
func sameRow(a, b map[string]any) bool {
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}

func wantsObject(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), rest.MediaTypeObject)
}

func profile(r *http.Request) string {
	h := r.Header.Get(rest.ProfileHeader(r.Method))
	if h == "" {
		return DefaultSchema
	}
	return h
}

func qualify(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return DefaultSchema + "." + name
}

func decodeBody(r *http.Request) (any, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		if err == io.EOF {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return v, nil
}

func normalize(row map[string]any) map[string]any {
	b, err := json.Marshal(row)
	if err != nil {
		panic(err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		panic(err)
	}
	return out
}

func contentRange(offset, n, total int, exact bool) string {
	if exact {
		return rest.FormatContentRange(offset, n, total)
	}
	if n == 0 {
		return "*/*"
	}
	return fmt.Sprintf("%d-%d/*", offset, offset+n-1)
}

func window(rows []map[string]any, offset, limit int) []map[string]any {
	if offset >= len(rows) || limit <= 0 {
		return []map[string]any{}
	}
	end := min(offset+limit, len(rows))
	return rows[offset:end]
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
