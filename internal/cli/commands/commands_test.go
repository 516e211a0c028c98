package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orm.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "ormctl", cmd.Use)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"version", "config", "db", "cache"})
}

func TestVersionCommand(t *testing.T) {
	Version = "1.2.3"
	defer func() { Version = "dev" }()

	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ormctl version: 1.2.3")
}

func TestConfigShow(t *testing.T) {
	path := writeConfig(t, `
environment: testing
lazy_loading:
  prevent: true
  allowed_relations: [posts, User.roles]
cache:
  enabled: true
  ttl: 30s
`)

	out, _, err := execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "environment:")
	assert.Contains(t, out, "testing")
	assert.Contains(t, out, "posts, User.roles")
	assert.Contains(t, out, "30s")
	assert.Contains(t, out, "created_at")
}

func TestConfigCheck(t *testing.T) {
	valid := writeConfig(t, "naming:\n  hydrate: camel\n")
	out, _, err := execute(t, "config", "check", "--config", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ configuration is valid")

	invalid := writeConfig(t, "naming:\n  hydrate: kebab\n")
	_, errOut, err := execute(t, "config", "check", "--config", invalid)
	require.Error(t, err)
	assert.Contains(t, errOut, "naming.hydrate")
}

func TestDBPing(t *testing.T) {
	out, _, err := execute(t, "db", "ping", "--driver", "sqlite3", "--dsn", ":memory:")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite database reachable")

	_, _, err = execute(t, "db", "ping", "--driver", "mysql", "--dsn", "x")
	assert.Error(t, err)

	_, _, err = execute(t, "db", "ping", "--driver", "sqlite3")
	assert.Error(t, err)
}

func TestCacheClear(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("orm:row:users:1", "x"))
	require.NoError(t, mr.Set("orm:row:users:2", "y"))
	require.NoError(t, mr.Set("other:key", "z"))
	mr.SetTTL("orm:row:users:2", time.Minute)

	out, _, err := execute(t, "cache", "clear", "--redis-addr", mr.Addr())
	require.NoError(t, err)
	assert.Contains(t, out, "cleared orm:*")

	assert.False(t, mr.Exists("orm:row:users:1"))
	assert.False(t, mr.Exists("orm:row:users:2"))
	assert.True(t, mr.Exists("other:key"))
}
