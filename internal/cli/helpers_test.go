package cli

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-for-development-only-0123456789"

// useConfig writes a config file pointing at baseURL and a temp database,
// and selects it for the duration of the test.
func useConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`
bridge:
  id: test-bridge

database:
  path: %q
  wal_mode: false
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"

influxdb:
  enabled: false

logging:
  level: error
  format: text

api:
  enabled: true
  port: 8090

syncsign:
  base_url: %q
  request_timeout: 2s

security:
  jwt:
    secret: %q
    access_token_ttl: 30
`, filepath.Join(dir, "data", "syncsign.db"), baseURL, testSecret)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	selectConfig(t, path)
	return path
}

func selectConfig(t *testing.T, path string) {
	t.Helper()
	original := configFlag
	configFlag = path
	t.Cleanup(func() { configFlag = original })
}

// fakeCloud serves the account endpoint for a single valid key.
func fakeCloud(t *testing.T, validKey, email string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/v2/key/"+validKey+"/user" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"code":401,"msg":"invalid key"}`)
			return
		}
		fmt.Fprintf(w, `{"code":0,"msg":"ok","data":{"userId":"u-1","email":%q,"username":"owner"}}`, email)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}
