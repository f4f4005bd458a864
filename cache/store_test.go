package cache

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/kecaknoah/compiler"
	"github.com/chazu/kecaknoah/vm"
	"github.com/chazu/kecaknoah/vm/dist"
)

const program = `
func square(n)
  return n * n
endfunc

func main
  return square(7)
endfunc
`

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "images.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Miss(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(program, compiler.Options{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on empty store = %v, want ErrNotFound", err)
	}
}

func TestStore_PutGet(t *testing.T) {
	s := openTestStore(t)
	img, err := compiler.Compile(program, compiler.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(program, compiler.Options{}, img); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(program, compiler.Options{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(vm.DisassembleImage(img), vm.DisassembleImage(got)); diff != "" {
		t.Errorf("cached image mismatch (-want +got):\n%s", diff)
	}

	// Same source under other options is a separate entry.
	if _, err := s.Get(program, compiler.Options{FoldConstants: true}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get with other options = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(program+"\n", compiler.Options{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get with edited source = %v, want ErrNotFound", err)
	}
}

func TestStore_Compile(t *testing.T) {
	s := openTestStore(t)

	first, hit, err := s.Compile(program, compiler.Options{})
	if err != nil || hit {
		t.Fatalf("first Compile = hit %v, err %v", hit, err)
	}
	second, hit, err := s.Compile(program, compiler.Options{})
	if err != nil || !hit {
		t.Fatalf("second Compile = hit %v, err %v", hit, err)
	}
	if diff := cmp.Diff(vm.DisassembleImage(first), vm.DisassembleImage(second)); diff != "" {
		t.Errorf("cached image mismatch (-want +got):\n%s", diff)
	}

	v := vm.New()
	if err := v.Load(second); err != nil {
		t.Fatal(err)
	}
	got, err := v.Run("main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.String() != "49" {
		t.Errorf("main() = %s, want 49", got)
	}
}

func TestStore_CompileErrorNotCached(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.Compile("func main\n  1 +\nendfunc", compiler.Options{}); err == nil {
		t.Fatal("expected a parse error")
	}
	if n, _ := s.Len(); n != 0 {
		t.Errorf("Len = %d after failed compile, want 0", n)
	}
}

func TestStore_FieldInitializersNotCached(t *testing.T) {
	s := openTestStore(t)
	src := "class A\n  local x = 1\nendclass\n"
	img, hit, err := s.Compile(src, compiler.Options{})
	if err != nil || hit {
		t.Fatalf("Compile = hit %v, err %v", hit, err)
	}
	if Cacheable(img) {
		t.Error("image with field initializers reported cacheable")
	}
	if n, _ := s.Len(); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestStore_CorruptEntryDropped(t *testing.T) {
	s := openTestStore(t)
	c := dist.NewSourceChunk(program)
	data, err := dist.MarshalChunk(c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("INSERT INTO images (hash, variant, chunk, created) VALUES (?, ?, ?, 0)",
		key(program), variant(compiler.Options{}), data); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(program, compiler.Options{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on imageless chunk = %v, want ErrNotFound", err)
	}
	if n, _ := s.Len(); n != 0 {
		t.Errorf("Len = %d after drop, want 0", n)
	}
}

func TestStore_Purge(t *testing.T) {
	s := openTestStore(t)
	for _, src := range []string{program, "func main\nendfunc\n"} {
		if _, _, err := s.Compile(src, compiler.Options{}); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := s.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}
	removed, err := s.Purge()
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 2 {
		t.Errorf("Purge removed %d, want 2", removed)
	}
	if n, _ := s.Len(); n != 0 {
		t.Errorf("Len after purge = %d", n)
	}
}

func TestStore_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Compile(program, compiler.Options{}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, hit, err := s.Compile(program, compiler.Options{}); err != nil || !hit {
		t.Errorf("Compile after reopen = hit %v, err %v", hit, err)
	}
}
