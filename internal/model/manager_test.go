package model

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func buildZipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestEnableRejectsUnlistedHost(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.json")
	os.WriteFile(regPath, []byte(`{"tiny":{"id":"tiny","url":"https://evil.example.com/m.zip","sha256":"x"}}`), 0o644)

	reg := NewRegistry(regPath)
	if cerr := reg.Load(); cerr != nil {
		t.Fatal(cerr)
	}

	mgr := NewManager(reg, filepath.Join(dir, "models"), nil, Events{})
	cerr := mgr.Enable(context.Background(), "tiny")
	if cerr == nil {
		t.Fatal("expected host allowlist rejection")
	}
	if mgr.State("tiny") != StateFailed {
		t.Fatalf("expected Failed state, got %s", mgr.State("tiny"))
	}
}

func TestEnableDownloadsVerifiesAndInstalls(t *testing.T) {
	archive := buildZipArchive(t, map[string]string{"tokens.txt": "hello"})
	sum := sha256.Sum256(archive)
	shaHex := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.json")
	regJSON := `{"tiny":{"id":"tiny","url":"` + srv.URL + `/m.zip","sha256":"` + shaHex + `"}}`
	os.WriteFile(regPath, []byte(regJSON), 0o644)

	reg := NewRegistry(regPath)
	if cerr := reg.Load(); cerr != nil {
		t.Fatal(cerr)
	}

	var verifiedCalled bool
	mgr := NewManager(reg, filepath.Join(dir, "models"), nil, Events{
		Verified: func(string) { verifiedCalled = true },
	})
	// httptest server host is 127.0.0.1:port; Hostname() strips the port.
	mgr.SetAllowedHosts([]string{"127.0.0.1"})

	if cerr := mgr.Enable(context.Background(), "tiny"); cerr != nil {
		t.Fatalf("enable failed: %v", cerr)
	}
	if mgr.State("tiny") != StateReady {
		t.Fatalf("expected Ready, got %s", mgr.State("tiny"))
	}
	if !verifiedCalled {
		t.Fatal("expected Verified callback")
	}

	installed := filepath.Join(mgr.InstallDir("tiny"), "tokens.txt")
	if _, err := os.Stat(installed); err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}

	if !mgr.IsReady("tiny") {
		t.Fatal("expected IsReady true after install")
	}
}

func TestEnableIsIdempotentWhenAlreadyReady(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.json")
	os.WriteFile(regPath, []byte(`{"tiny":{"id":"tiny","url":"https://127.0.0.1/never-called.zip","sha256":"x"}}`), 0o644)

	reg := NewRegistry(regPath)
	reg.Load()

	mgr := NewManager(reg, filepath.Join(dir, "models"), nil, Events{})
	os.MkdirAll(mgr.InstallDir("tiny"), 0o755)
	os.WriteFile(mgr.readyMarker("tiny"), []byte("x"), 0o644)

	if cerr := mgr.Enable(context.Background(), "tiny"); cerr != nil {
		t.Fatalf("expected idempotent success, got %v", cerr)
	}
	if mgr.State("tiny") != StateReady {
		t.Fatalf("expected Ready, got %s", mgr.State("tiny"))
	}
}

func TestEnableUnknownModelFails(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.json")
	os.WriteFile(regPath, []byte(`{}`), 0o644)
	reg := NewRegistry(regPath)
	reg.Load()

	mgr := NewManager(reg, filepath.Join(dir, "models"), nil, Events{})
	if cerr := mgr.Enable(context.Background(), "missing"); cerr == nil {
		t.Fatal("expected ModelMissing error")
	}
}
