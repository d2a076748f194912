package pgrst

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edgeflare/dataprovider/internal/testutil/pgrsttest"
	"github.com/edgeflare/dataprovider/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
provider:
  schema: crm
  primaryKeys:
    contacts: [tenant, email]
`

// run executes the root command with a config file and no dotenv file.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "pgrst.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(testConfig), 0o600))

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", cfgFile, "--env-file", filepath.Join(dir, ".env"), "-L", "none"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestURLCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains []string
	}{
		{
			name: "get list",
			args: []string{"url", "getList", "posts", "--provider.apiURL", "http://api.test",
				"--params", `{"pagination":{"page":2,"perPage":10},"sort":{"field":"title","order":"ASC"},"filter":{"title@ilike":"hello"}}`},
			contains: []string{
				"GET http://api.test/posts?",
				"offset=10",
				"limit=10",
				"order=title.asc",
				"title=ilike.*hello*",
				"Accept-Profile: crm",
				"Prefer: count=exact",
			},
		},
		{
			name:     "get one by compound key",
			args:     []string{"url", "getOne", "contacts", "--provider.apiURL", "http://api.test", "--params", `{"id":"[1,\"ada@example.com\"]"}`},
			contains: []string{"GET http://api.test/contacts?", "and=(tenant.eq.1,email.eq.ada@example.com)", "Accept: application/vnd.pgrst.object+json"},
		},
		{
			name:     "create prints the body",
			args:     []string{"url", "create", "posts", "--provider.apiURL", "http://api.test", "--params", `{"data":{"title":"Hello"}}`},
			contains: []string{"POST http://api.test/posts", "Content-Profile: crm", "Prefer: return=representation", `"title": "Hello"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestURLCommandRaw(t *testing.T) {
	out, err := run(t, "url", "getList", "posts", "--raw", "--provider.apiURL", "http://api.test",
		"--params", `{"filter":{"title@in":["a b","c"]}}`)
	require.NoError(t, err)
	assert.NotContains(t, out, "a b")
	assert.Contains(t, out, "GET http://api.test/posts?")
}

func TestUnknownOperation(t *testing.T) {
	_, err := run(t, "url", "explode", "posts")
	assert.ErrorIs(t, err, provider.ErrUnknownOperation)

	_, err = run(t, "call", "explode", "posts")
	assert.ErrorIs(t, err, provider.ErrUnknownOperation)
}

func TestInvalidParams(t *testing.T) {
	_, err := run(t, "url", "getOne", "posts", "--params", `{"id":`)
	assert.ErrorIs(t, err, provider.ErrInvalidParams)
}

func TestCallCommand(t *testing.T) {
	gw := pgrsttest.New()
	gw.AddTable("crm.posts", []string{"id"},
		map[string]any{"id": 1, "title": "Hello"},
		map[string]any{"id": 2, "title": "World"},
	)
	srv := pgrsttest.Start(t, gw)

	out, err := run(t, "call", "getOne", "posts", "--provider.apiURL", srv.URL, "--params", `{"id":2}`)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, map[string]any{"id": float64(2), "title": "World"}, got["data"])
	assert.Equal(t, "crm", gw.LastRequest().Header.Get("Accept-Profile"))
}

func TestCallCommandWithLogin(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"sub": "42", "role": "editor"})
	require.NoError(t, err)
	token := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + ".c2lnbmF0dXJl"

	gw := pgrsttest.New()
	gw.AddTable("crm.posts", []string{"id"}, map[string]any{"id": 1, "title": "Hello"})
	gw.AddRPC("login", func(args url.Values) []map[string]any {
		if args.Get("password") != "secret" {
			return nil
		}
		return []map[string]any{{"token": token}}
	})
	srv := pgrsttest.Start(t, gw)

	_, err = run(t, "call", "getList", "posts", "--provider.apiURL", srv.URL, "--user", "ada@example.com", "--password", "secret")
	require.NoError(t, err)
	req := gw.LastRequest()
	assert.Equal(t, "/posts", req.Path)
	assert.Equal(t, "Bearer "+token, req.Header.Get("Authorization"))

	_, err = run(t, "call", "getList", "posts", "--provider.apiURL", srv.URL, "--user", "ada@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "login failed"))
}

func TestVersion(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"url", "getList", "posts", "-L", "loud", "--env-file", filepath.Join(t.TempDir(), ".env")})
	assert.ErrorContains(t, cmd.Execute(), "invalid log level")
}
