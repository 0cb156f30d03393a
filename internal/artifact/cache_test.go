package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreAndVerifyRoundTrip(t *testing.T) {
	c, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	data := []byte("artifact payload")
	sum, err := ChecksumFile(writeTempFile(t, data))
	if err != nil {
		t.Fatalf("ChecksumFile() error = %v", err)
	}

	url := "https://example.com/tool.tar.gz"
	if err := c.Store(url, data, sum); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !c.Has(url) {
		t.Error("Has() = false after Store")
	}
	if err := c.Verify(url, sum); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestStoreRejectsChecksumMismatch(t *testing.T) {
	c, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	url := "https://example.com/tool.tar.gz"
	if err := c.Store(url, []byte("payload"), "0000000000000000000000000000000000000000000000000000000000000000"); err == nil {
		t.Fatal("expected a checksum mismatch error")
	}
	if c.Has(url) {
		t.Error("Has() = true, want nothing written on a checksum mismatch")
	}
}

func TestManifestReportsCacheStatus(t *testing.T) {
	c, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	cached := "https://example.com/cached.tar.gz"
	missing := "https://example.com/missing.tar.gz"
	if err := c.Store(cached, []byte("x"), ""); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	entries := c.Manifest([]string{cached, missing})
	if len(entries) != 2 {
		t.Fatalf("Manifest() returned %d entries, want 2", len(entries))
	}
	byURL := map[string]ManifestEntry{}
	for _, e := range entries {
		byURL[e.URL] = e
	}
	if !byURL[cached].Cached {
		t.Error("cached URL reported as not cached")
	}
	if byURL[missing].Cached {
		t.Error("missing URL reported as cached")
	}
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
