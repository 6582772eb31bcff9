package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dusk/internal/config"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`logger:
  level: error
driver:
  name: htmldom
browser:
  wait_timeout: 300ms
  screenshots_dir: %[1]s/screenshots
  console_log_dir: %[1]s/console
  source_dir: %[1]s/source
`, dir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Status</title></head><body><main id="app"><h1>All systems go</h1></main></body></html>`)
	}))
	defer server.Close()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	out, err := execute(t, "check", server.URL+"/status", "--config", cfgPath,
		"--selector", "#app", "--see", "systems go", "--title", "Status")
	require.NoError(t, err)
	assert.Equal(t, "OK "+server.URL+"/status\n", out)
	assert.Equal(t, config.DriverHTMLDOM, config.Get().Driver.Name)

	_, err = execute(t, "check", server.URL+"/status", "--config", cfgPath,
		"--selector", "#app", "--see", "meltdown", "--title", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meltdown")

	source, err := os.ReadFile(filepath.Join(dir, "source", "check.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(source), "All systems go")
}

func TestReportCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "console"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "console", "a-0.log"), []byte("[]"), 0o644))

	out, err := execute(t, "report", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"screenshots": []`)
	assert.Contains(t, out, filepath.Join(dir, "console", "a-0.log"))
}

func TestListArtifactsMissingDir(t *testing.T) {
	artifacts, err := listArtifacts(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dusk "+Version+"\n", out)
}
