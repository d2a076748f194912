package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/edgeflare/dataprovider/internal/testutil/pgrsttest"
	"github.com/edgeflare/dataprovider/pkg/httputil"
	"github.com/edgeflare/dataprovider/pkg/provider"
	"github.com/edgeflare/dataprovider/pkg/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*pgrsttest.Server, *provider.Provider) {
	t.Helper()

	gw := pgrsttest.New()
	gw.AddTable("posts", []string{"id"},
		map[string]any{"id": 1, "title": "Hello world", "author_id": 1, "views": 10},
		map[string]any{"id": 2, "title": "Second post", "author_id": 2, "views": nil},
		map[string]any{"id": 3, "title": "Hello again", "author_id": 1, "views": 3},
	)
	gw.AddTable("authors", []string{"id"},
		map[string]any{"id": 1, "name": "Ada"},
		map[string]any{"id": 2, "name": "Linus"},
	)
	gw.AddRelation("posts", "authors", "authors", "author_id", "id", false)
	gw.AddTable("crm.memberships", []string{"org", "user"},
		map[string]any{"org": "acme", "user": "ada", "role": "owner"},
		map[string]any{"org": "acme", "user": "linus", "role": "member"},
		map[string]any{"org": "initech", "user": "ada", "role": "member"},
	)
	srv := pgrsttest.Start(t, gw)

	client := httputil.NewClient(httputil.DefaultClientConfig())
	p := provider.New(srv.URL, client,
		provider.WithPrimaryKeys(map[string][]string{"memberships": {"org", "user"}}),
		provider.WithNullsOrder(rest.NullsLast),
	)
	return gw, p
}

func TestIntegrationList(t *testing.T) {
	_, p := setup(t)
	ctx := context.Background()

	res, err := p.GetList(ctx, "posts", provider.GetListParams{
		Pagination: &provider.Pagination{Page: 1, PerPage: 2},
		Sort:       &provider.Sort{Field: "views", Order: "DESC"},
		Filter:     map[string]any{"title@ilike": "hello"},
		Meta:       map[string]any{"prefetch": "authors"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Data, 2)
	assert.Equal(t, json.Number("1"), res.Data[0]["id"])
	assert.Equal(t, json.Number("3"), res.Data[1]["id"])
	assert.NotContains(t, res.Data[0], "authors")
	require.NotNil(t, res.Meta)
	assert.Len(t, res.Meta.Prefetched["authors"], 1)

	res, err = p.GetList(ctx, "posts", provider.GetListParams{
		Sort: &provider.Sort{Field: "views", Order: "ASC"},
	})
	require.NoError(t, err)
	assert.Equal(t, json.Number("2"), res.Data[2]["id"], "nulls sort last")
}

func TestIntegrationCompoundKeys(t *testing.T) {
	gw, p := setup(t)
	ctx := context.Background()
	schema := map[string]any{"schema": "crm"}

	list, err := p.GetList(ctx, "memberships", provider.GetListParams{
		Sort:   &provider.Sort{Field: "id", Order: "ASC"},
		Filter: map[string]any{"user": "ada"},
		Meta:   schema,
	})
	require.NoError(t, err)
	require.Len(t, list.Data, 2)
	assert.Equal(t, `["acme","ada"]`, list.Data[0]["id"])
	assert.Equal(t, `["initech","ada"]`, list.Data[1]["id"])

	one, err := p.GetOne(ctx, "memberships", provider.GetOneParams{ID: `["acme","linus"]`, Meta: schema})
	require.NoError(t, err)
	assert.Equal(t, "member", one.Data["role"])

	upd, err := p.Update(ctx, "memberships", provider.UpdateParams{
		ID:           `["acme","linus"]`,
		Data:         map[string]any{"id": `["acme","linus"]`, "org": "acme", "user": "linus", "role": "admin"},
		PreviousData: one.Data,
		Meta:         schema,
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", upd.Data["role"])
	assert.Equal(t, `["acme","linus"]`, upd.Data["id"])

	many, err := p.UpdateMany(ctx, "memberships", provider.UpdateManyParams{
		IDs:  []any{`["acme","ada"]`, `["initech","ada"]`},
		Data: map[string]any{"role": "viewer"},
		Meta: schema,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{`["acme","ada"]`, `["initech","ada"]`}, many.Data)

	last := gw.LastRequest()
	assert.Equal(t, http.MethodPatch, last.Method)
	assert.Equal(t, "crm", last.Header.Get("Content-Profile"))
	assert.JSONEq(t, `{"role":"viewer"}`, string(last.Body))

	deleted, err := p.DeleteMany(ctx, "memberships", provider.DeleteManyParams{
		IDs:  []any{`["acme","linus"]`},
		Meta: schema,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{`["acme","linus"]`}, deleted.Data)
	assert.Len(t, gw.Rows("crm.memberships"), 2)
}

func TestIntegrationWrites(t *testing.T) {
	gw, p := setup(t)
	ctx := context.Background()

	created, err := p.Create(ctx, "posts", provider.CreateParams{Data: map[string]any{"title": "Fresh", "author_id": 2}})
	require.NoError(t, err)
	assert.Equal(t, json.Number("4"), created.Data["id"])

	got, err := p.GetMany(ctx, "posts", provider.GetManyParams{IDs: []any{json.Number("1"), json.Number("4")}})
	require.NoError(t, err)
	assert.Len(t, got.Data, 2)

	ref, err := p.GetManyReference(ctx, "posts", provider.GetManyReferenceParams{
		Target: "author_id",
		ID:     json.Number("2"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ref.Total)

	del, err := p.Delete(ctx, "posts", provider.DeleteParams{ID: json.Number("4")})
	require.NoError(t, err)
	assert.Equal(t, "Fresh", del.Data["title"])
	assert.Len(t, gw.Rows("posts"), 3)

	_, err = p.GetOne(ctx, "posts", provider.GetOneParams{ID: json.Number("4")})
	var statusErr *httputil.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotAcceptable, statusErr.StatusCode)
}

func TestIntegrationMissingContentRange(t *testing.T) {
	gw, p := setup(t)
	gw.OmitContentRange(true)

	_, err := p.GetList(context.Background(), "posts", provider.GetListParams{})
	require.Error(t, err)
	assert.Regexp(t, "(?i)content-range", err.Error())
}

func TestIntegrationRPC(t *testing.T) {
	gw, p := setup(t)
	gw.AddRPC("search_posts", func(args url.Values) []map[string]any {
		return []map[string]any{{"id": 1, "q": args.Get("term")}, {"id": 2, "q": args.Get("term")}}
	})

	res, err := p.GetList(context.Background(), "rpc/search_posts", provider.GetListParams{
		Filter: map[string]any{"term@": "go"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, "go", res.Data[0]["q"])
}
