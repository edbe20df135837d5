package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/cdnet/internal/config"
	"github.com/nvandessel/cdnet/internal/logging"
)

// setupTestServer creates a server rooted in a temp dir with its config dir
// and archive inside that dir. archive=false leaves the archive off.
func setupTestServer(t *testing.T, archive bool) (*Server, string) {
	t.Helper()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".cdnet")

	settings := config.Default()
	if archive {
		settings.Archive.Path = filepath.Join(configDir, "runs.db")
		if err := os.MkdirAll(configDir, 0700); err != nil {
			t.Fatal(err)
		}
	}

	server, err := NewServer(&Config{
		Name:      "test-server",
		Version:   "v1.0.0",
		Root:      tmpDir,
		ConfigDir: configDir,
		Settings:  settings,
		Logger:    logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, tmpDir
}

func TestNewServer(t *testing.T) {
	server, tmpDir := setupTestServer(t, false)

	if server.server == nil {
		t.Error("SDK server should be set")
	}
	if server.session.Cache() == nil {
		t.Error("default settings should enable the integral cache")
	}
	if server.session.Archive() != nil {
		t.Error("archive should be off without archive.path")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".cdnet", "audit.jsonl")); err != nil {
		t.Errorf("audit log not created: %v", err)
	}
}

func TestNewServer_InvalidSettings(t *testing.T) {
	settings := config.Default()
	settings.Integration.Method = "euler"

	_, err := NewServer(&Config{
		Name:      "test-server",
		Version:   "v1.0.0",
		Root:      t.TempDir(),
		ConfigDir: t.TempDir(),
		Settings:  settings,
		Logger:    logging.Discard(),
	})
	if err == nil {
		t.Error("NewServer() with an unknown method should fail")
	}
}

func TestServer_CloseTwice(t *testing.T) {
	server, _ := setupTestServer(t, true)
	if err := server.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := server.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestReferenceResource(t *testing.T) {
	server, _ := setupTestServer(t, false)

	result, err := server.handleReferenceResource(context.Background(), &sdk.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleReferenceResource() error = %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(result.Contents))
	}
	text := result.Contents[0].Text
	for _, want := range []string{"`simple_ee`", "`inhibitory`", "`romberg`", "`lfilter` (configured)"} {
		if !strings.Contains(text, want) {
			t.Errorf("reference missing %s", want)
		}
	}
}
