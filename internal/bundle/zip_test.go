package bundle

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

func TestU_WriteZip(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"www.crt":           "cert data",
		"www.fullchain.pem": "chain data",
		"www.p12":           "p12 data",
		"www.key":           "secret key",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	archivePath := filepath.Join(dir, "www.zip")
	if err := WriteZip(archivePath, dir, "www.key"); err != nil {
		t.Fatalf("WriteZip() error = %v", err)
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer r.Close()

	got := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		got[f.Name] = string(data)
	}

	if len(got) != 3 {
		t.Errorf("archive holds %d entries, want 3: %v", len(got), got)
	}
	for _, name := range []string{"www.crt", "www.fullchain.pem", "www.p12"} {
		if got[name] != files[name] {
			t.Errorf("entry %s = %q, want %q", name, got[name], files[name])
		}
	}
	if _, ok := got["www.key"]; ok {
		t.Error("excluded key file ended up in the archive")
	}
	if _, ok := got["www.zip"]; ok {
		t.Error("archive should not contain itself")
	}
}

func TestU_WriteZip_MissingDir(t *testing.T) {
	tmp := t.TempDir()
	if err := WriteZip(filepath.Join(tmp, "out.zip"), filepath.Join(tmp, "absent")); err == nil {
		t.Error("WriteZip() on a missing directory should fail")
	}
}
