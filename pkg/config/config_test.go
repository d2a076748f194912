package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
provider:
  apiURL: http://postgrest:3000
  defaultListOp: ilike
  nullsOrder: nullslast
  primaryKeys:
    contacts: [id, type]
    rpc/contacts: [id, type]
transport:
  timeout: 2s
  retry: true
  rateLimit: 20
server:
  pathPrefix: /api
  basicAuth:
    admin: secret
metrics:
  addr: ":9100"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgrst.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(nil, writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://postgrest:3000", cfg.Provider.APIURL)
	assert.Equal(t, "ilike", cfg.Provider.DefaultListOp)
	assert.Equal(t, "nullslast", cfg.Provider.NullsOrder)
	assert.Equal(t, []string{"id", "type"}, cfg.Provider.PrimaryKeys["contacts"])
	assert.Equal(t, []string{"id", "type"}, cfg.Provider.PrimaryKeys["rpc/contacts"])
	assert.Equal(t, 2*time.Second, cfg.Transport.Timeout)
	assert.True(t, cfg.Transport.Retry)
	assert.Equal(t, 3, cfg.Transport.MaxRetries, "unset values keep their defaults")
	assert.Equal(t, 20.0, cfg.Transport.RateLimit)
	assert.Equal(t, "rpc/login", cfg.Auth.LoginPath)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "secret", cfg.Server.BasicAuth["admin"])
	assert.Equal(t, "/api", cfg.Server.PathPrefix)
	assert.Empty(t, cfg.Server.TLSCertFile)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PGRST_PROVIDER_APIURL", "http://from-env:3000")
	t.Setenv("PGRST_TRANSPORT_MAXRETRIES", "7")

	cfg, err := Load(New(), writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:3000", cfg.Provider.APIURL)
	assert.Equal(t, 7, cfg.Transport.MaxRetries)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(nil, writeConfig(t, "provider:\n  nullsOrder: sideways\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nullsOrder")

	_, err = Load(nil, writeConfig(t, "server:\n  tlsCertFile: /etc/pgrst/tls.crt\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tlsKeyFile")

	_, err = Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit config file must exist")
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
