package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/kecaknoah/compiler"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"

[source]
dirs = ["src", "lib"]
entry = "start"

[compiler]
fold-constants = true

[cache]
enabled = true
path = ".kecaknoah/images.db"

[log]
verbosity = 2
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if diff := cmp.Diff([]string{"src", "lib"}, m.Source.Dirs); diff != "" {
		t.Errorf("source dirs mismatch (-want +got):\n%s", diff)
	}
	if m.Source.Entry != "start" {
		t.Errorf("source entry = %q, want start", m.Source.Entry)
	}
	if m.CompilerOptions() != (compiler.Options{FoldConstants: true}) {
		t.Errorf("compiler options = %+v", m.CompilerOptions())
	}
	if !m.Cache.Enabled {
		t.Error("cache enabled = false, want true")
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, ".kecaknoah", "images.db"); got != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Source.Entry != "main" {
		t.Errorf("default entry = %q, want main", m.Source.Entry)
	}
	if m.Cache.Enabled || m.CachePath() != "" {
		t.Errorf("cache = %+v, want disabled with default path", m.Cache)
	}
	if m.CompilerOptions().FoldConstants {
		t.Error("fold-constants should default to false")
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":      "[project\nname = 1",
		"unknown key": "[project]\nname = \"x\"\nnamespace = \"y\"\n",
		"wrong type":  "[log]\nverbosity = \"loud\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, content)
			if _, err := Load(dir); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected an error for a missing manifest")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no kecaknoah.toml exists")
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir:    "/app",
		Source: Source{Dirs: []string{"src", "lib"}},
	}

	want := []string{"/app/src", "/app/lib"}
	if diff := cmp.Diff(want, m.SourceDirPaths()); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceFiles(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"src/main.kn", "src/util/strings.kn", "src/notes.txt", "lib/a.kn"} {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	m := &Manifest{Dir: dir, Source: Source{Dirs: []string{"src", "missing", "lib"}}}

	files, err := m.SourceFiles()
	if err != nil {
		t.Fatalf("SourceFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "lib/a.kn"),
		filepath.Join(dir, "src/main.kn"),
		filepath.Join(dir, "src/util/strings.kn"),
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestCachePathAbsolute(t *testing.T) {
	m := &Manifest{Dir: "/app", Cache: CacheConfig{Path: "/var/cache/k.db"}}
	if got := m.CachePath(); got != "/var/cache/k.db" {
		t.Errorf("CachePath = %q", got)
	}
}
