package journal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/mdblog/internal/contents"
	apierrors "github.com/maruel/mdblog/internal/errors"
)

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", FileName)
	j, err := Open(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []string{"one", "two", "three"} {
		if err := j.Record(Entry{Op: "put", Path: "posts/index.json", Message: m}); err != nil {
			t.Fatal(err)
		}
	}
	got := j.Last(0)
	if len(got) != 3 || got[0].Message != "three" || got[2].Message != "one" {
		t.Fatalf("Last(0) = %+v", got)
	}
	if got[0].ID.IsZero() || got[0].Time.IsZero() {
		t.Fatalf("ID and Time must be filled: %+v", got[0])
	}
	if got := j.Last(1); len(got) != 1 || got[0].Message != "three" {
		t.Fatalf("Last(1) = %+v", got)
	}

	// The fourth entry reaches twice the limit and trims to the newest two.
	if err := j.Record(Entry{Op: "delete", Path: "posts/a/b.md", Message: "four"}); err != nil {
		t.Fatal(err)
	}
	j2, err := Open(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	got = j2.Last(0)
	if len(got) != 2 || got[0].Message != "four" || got[1].Message != "three" {
		t.Fatalf("reloaded = %+v", got)
	}
	if got[0].ID != j.Last(1)[0].ID {
		t.Fatal("IDs must survive a reload")
	}
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("{\"op\":\"put\"}\n\nnot json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, 0)
	if err == nil || !strings.Contains(err.Error(), ":3:") {
		t.Fatalf("got %v, want the line number", err)
	}
}

func TestStore(t *testing.T) {
	ctx := t.Context()
	j, err := Open(filepath.Join(t.TempDir(), FileName), 0)
	if err != nil {
		t.Fatal(err)
	}
	mem := contents.NewMemory("bean")
	s := j.Wrap(mem)
	if _, err := s.Identity(ctx); err != nil {
		t.Fatal(err)
	}
	sha, err := s.Put(ctx, "posts/tech/a.md", []byte("A"), "Add post: A", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, "posts/tech/a.md", []byte("B"), "Add post: A", ""); !apierrors.IsConflict(err) {
		t.Fatalf("got %v, want CONFLICT", err)
	}
	mem.FailNext("delete", "", errors.New("boom"))
	if err := s.Delete(ctx, "posts/tech/a.md", sha, "Delete post: A"); err == nil {
		t.Fatal("expected the injected failure")
	}
	if err := s.Delete(ctx, "posts/tech/a.md", sha, "Delete post: A"); err != nil {
		t.Fatal(err)
	}
	got := j.Last(0)
	if len(got) != 2 {
		t.Fatalf("only successful writes are recorded: %+v", got)
	}
	if got[0].Op != "delete" || got[1].Op != "put" || got[1].SHA != sha || got[1].User != "bean" {
		t.Fatalf("unexpected entries %+v", got)
	}
	if f, err := s.Get(ctx, "posts/tech/a.md"); !apierrors.IsNotFound(err) {
		t.Fatalf("Get must pass through: %v %v", f, err)
	}
}
