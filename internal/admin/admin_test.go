package admin

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/maruel/mdblog/internal/blog"
	"github.com/maruel/mdblog/internal/contents"
	apierrors "github.com/maruel/mdblog/internal/errors"
)

const testIndex = `{"categories":[
 {"name":"Tech","slug":"tech","posts":[
  {"slug":"welcome","title":"Welcome","date":"February 2, 2026","author":"Bean","excerpt":"Hi"}],
  "subcategories":[{"name":"Go","slug":"go","posts":[]}]},
 {"name":"Life","slug":"life","posts":[],"subcategories":[]}]}`

func seededMemory() *contents.Memory {
	mem := contents.NewMemory("bean")
	mem.Seed(blog.IndexPath, []byte(testIndex))
	mem.Seed("posts/tech/welcome.md", []byte("# Welcome\n"))
	return mem
}

func connectTo(store contents.Store) Connector {
	return func(_ context.Context, credential string) (contents.Store, error) {
		if credential != "good" {
			return contents.NewMemory(""), nil
		}
		return store, nil
	}
}

func newTestSession(t *testing.T, store contents.Store) *Session {
	t.Helper()
	s := NewSession(connectTo(store), nil)
	if err := s.Login(t.Context(), "good"); err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestEditor(s *Session) *Editor {
	e := NewEditor(s, "")
	e.now = func() time.Time { return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func remoteIndex(t *testing.T, mem *contents.Memory) *blog.Index {
	t.Helper()
	f, err := mem.Get(t.Context(), blog.IndexPath)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := blog.Parse(f.Content)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func commitMessages(mem *contents.Memory) []string {
	var out []string
	for _, c := range mem.Commits() {
		out = append(out, c.Message)
	}
	return out
}

func TestSessionLifecycle(t *testing.T) {
	mem := seededMemory()
	keeper := NewCredentialStore(filepath.Join(t.TempDir(), "credential"), [32]byte{1, 2, 3})
	s := NewSession(connectTo(mem), keeper)
	if s.State() != StateInit {
		t.Fatalf("state = %s", s.State())
	}
	if _, err := s.Index(); !apierrors.Is(err, apierrors.ErrAuthInvalid) {
		t.Errorf("Index before login: %v", err)
	}
	if err := s.Resume(t.Context()); !apierrors.Is(err, apierrors.ErrAuthInvalid) {
		t.Errorf("Resume without credential: %v", err)
	}

	if err := s.Login(t.Context(), "bad"); !apierrors.Is(err, apierrors.ErrAuthInvalid) {
		t.Fatalf("bad login: %v", err)
	}
	if s.State() != StateCleared || s.User() != "" {
		t.Errorf("after bad login: %s %q", s.State(), s.User())
	}
	if c, _ := keeper.Load(); c != "" {
		t.Errorf("rejected credential persisted: %q", c)
	}

	if err := s.Login(t.Context(), " good "); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateActive || s.User() != "bean" {
		t.Errorf("after login: %s %q", s.State(), s.User())
	}
	if c, _ := keeper.Load(); c != "good" {
		t.Errorf("credential = %q", c)
	}

	// A new process resumes with the persisted credential.
	s2 := NewSession(connectTo(mem), keeper)
	if err := s2.Resume(t.Context()); err != nil {
		t.Fatal(err)
	}
	if s2.State() != StateActive {
		t.Errorf("resumed state = %s", s2.State())
	}

	if err := s.Logout(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateCleared {
		t.Errorf("after logout: %s", s.State())
	}
	if _, err := s.Index(); !apierrors.Is(err, apierrors.ErrAuthInvalid) {
		t.Errorf("Index after logout: %v", err)
	}
	if c, _ := keeper.Load(); c != "" {
		t.Errorf("credential survived logout: %q", c)
	}

	// A rejected credential discards the persisted one.
	if err := keeper.Save("good"); err != nil {
		t.Fatal(err)
	}
	if err := s.Login(t.Context(), "expired"); err == nil {
		t.Fatal("expected error")
	}
	if c, _ := keeper.Load(); c != "" {
		t.Errorf("credential = %q", c)
	}
}

func TestSessionLoginFailureDiscardsCredential(t *testing.T) {
	outage := apierrors.RemoteUnavailable("GitHub request failed", errors.New("dial tcp: timeout"))
	tests := []struct {
		name    string
		connect func(mem *contents.Memory) Connector
	}{
		{"identity", func(mem *contents.Memory) Connector {
			mem.FailNext("identity", "", outage)
			return connectTo(mem)
		}},
		{"connect", func(*contents.Memory) Connector {
			return func(context.Context, string) (contents.Store, error) { return nil, outage }
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keeper := NewCredentialStore(filepath.Join(t.TempDir(), "credential"), [32]byte{4})
			if err := keeper.Save("good"); err != nil {
				t.Fatal(err)
			}
			s := NewSession(tt.connect(seededMemory()), keeper)
			if err := s.Resume(t.Context()); !apierrors.Is(err, apierrors.ErrRemoteUnavailable) {
				t.Fatalf("got %v, want REMOTE_UNAVAILABLE", err)
			}
			if s.State() != StateCleared || s.User() != "" {
				t.Errorf("after failed login: %s %q", s.State(), s.User())
			}
			if c, _ := keeper.Load(); c != "" {
				t.Errorf("credential kept after failed login: %q", c)
			}
		})
	}
}

func TestSessionValidatedWithoutIndex(t *testing.T) {
	mem := contents.NewMemory("bean")
	s := NewSession(connectTo(mem), nil)
	if err := s.Login(t.Context(), "good"); !apierrors.IsNotFound(err) {
		t.Fatalf("got %v", err)
	}
	if s.State() != StateValidated {
		t.Fatalf("state = %s", s.State())
	}
	if _, err := s.Index(); !apierrors.Is(err, apierrors.ErrAuthInvalid) {
		t.Errorf("Index while validated: %v", err)
	}
	mem.Seed(blog.IndexPath, []byte(testIndex))
	if err := s.Refresh(t.Context()); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateActive {
		t.Errorf("state = %s", s.State())
	}
}

func TestIndexCacheCreate(t *testing.T) {
	mem := contents.NewMemory("bean")
	c := NewIndexCache(mem)
	if err := c.Create(t.Context(), "Create index"); err != nil {
		t.Fatal(err)
	}
	if !c.Loaded() || c.SHA() == "" {
		t.Error("cache not loaded")
	}
	f, err := mem.Get(t.Context(), blog.IndexPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(f.Content) != "{\n    \"categories\": []\n}\n" {
		t.Errorf("content = %q", f.Content)
	}
	if err := c.Create(t.Context(), "again"); !apierrors.IsConflict(err) {
		t.Errorf("second create: %v", err)
	}
}

func TestIndexCacheStaleCommit(t *testing.T) {
	mem := seededMemory()
	c := NewIndexCache(mem)
	if err := c.Commit(t.Context(), &blog.Index{}, "x"); err == nil {
		t.Fatal("commit before fetch succeeded")
	}
	if err := c.Fetch(t.Context()); err != nil {
		t.Fatal(err)
	}
	before := c.Snapshot()
	sha := c.SHA()

	// Another session changes the document.
	other := NewIndexCache(mem)
	if err := other.Fetch(t.Context()); err != nil {
		t.Fatal(err)
	}
	if _, err := other.Update(t.Context(), "Add category: Misc", func(idx *blog.Index) (*blog.Index, error) {
		return idx.WithCategory("Misc")
	}); err != nil {
		t.Fatal(err)
	}

	next, err := before.WithCategory("Music")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Commit(t.Context(), next, "Add category: Music"); !apierrors.IsConflict(err) {
		t.Fatalf("stale commit: %v", err)
	}
	if !reflect.DeepEqual(c.Snapshot(), before) || c.SHA() != sha {
		t.Error("failed commit mutated the cache")
	}

	// Update re-fetches on conflict and surfaces it.
	_, err = c.Update(t.Context(), "Add category: Music", func(idx *blog.Index) (*blog.Index, error) {
		return idx.WithCategory("Music")
	})
	if !apierrors.IsConflict(err) {
		t.Fatalf("Update: %v", err)
	}
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) || apiErr.Details()["refetched"] != true {
		t.Errorf("conflict not marked as refetched: %v", err)
	}
	if _, ok := c.Snapshot().Category("misc"); !ok {
		t.Error("cache not re-fetched")
	}
	// The retry succeeds.
	if _, err := c.Update(t.Context(), "Add category: Music", func(idx *blog.Index) (*blog.Index, error) {
		return idx.WithCategory("Music")
	}); err != nil {
		t.Fatal(err)
	}
	if got := len(remoteIndex(t, mem).Categories); got != 4 {
		t.Errorf("remote has %d categories", got)
	}
}

func TestEditorCreateHelloWorld(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	e := newTestEditor(s)

	f, err := e.NewPost()
	if err != nil {
		t.Fatal(err)
	}
	if f.Date != "March 1, 2026" || f.Author != "Bean" {
		t.Errorf("defaults = %+v", f)
	}
	if e.State() != EditorCreating {
		t.Errorf("state = %s", e.State())
	}
	f.Title = "Hello World"
	f.Category = "life"
	f.Body = "Hi there.\n"
	entry, err := e.Save(t.Context(), f)
	if err != nil {
		t.Fatal(err)
	}
	if e.State() != EditorIdle {
		t.Errorf("state = %s", e.State())
	}
	want := blog.Post{Slug: "hello-world", Title: "Hello World", Date: "March 1, 2026", Author: "Bean"}
	if entry.Post != want || entry.CategoryName != "Life" {
		t.Errorf("entry = %+v", entry)
	}
	got, err := mem.Get(t.Context(), "posts/life/hello-world.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Content) != "Hi there.\n" {
		t.Errorf("body = %q", got.Content)
	}
	if p, ok := remoteIndex(t, mem).Post(blog.Locator{Category: "life", Slug: "hello-world"}); !ok || p != want {
		t.Errorf("index entry = %+v", p)
	}
	if msgs := commitMessages(mem); !slices.Equal(msgs, []string{"Add post: Hello World", "Add to index: Hello World"}) {
		t.Errorf("commits = %q", msgs)
	}
}

func TestEditorMovePost(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	e := newTestEditor(s)
	old := blog.Locator{Category: "tech", Slug: "welcome"}
	f, err := e.EditPost(t.Context(), old)
	if err != nil {
		t.Fatal(err)
	}
	if f.Title != "Welcome" || f.Body != "# Welcome\n" || f.Category != "tech" || e.State() != EditorEditing {
		t.Fatalf("form = %+v", f)
	}
	f.Category = "life"
	if _, err := e.Save(t.Context(), f); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Get(t.Context(), "posts/tech/welcome.md"); !apierrors.IsNotFound(err) {
		t.Errorf("old file: %v", err)
	}
	moved, err := mem.Get(t.Context(), "posts/life/welcome.md")
	if err != nil || string(moved.Content) != "# Welcome\n" {
		t.Fatalf("new file: %v", err)
	}
	idx := remoteIndex(t, mem)
	if _, ok := idx.Post(old); ok {
		t.Error("entry still in tech")
	}
	want := blog.Post{Slug: "welcome", Title: "Welcome", Date: "February 2, 2026", Author: "Bean", Excerpt: "Hi"}
	if p, ok := idx.Post(blog.Locator{Category: "life", Slug: "welcome"}); !ok || p != want {
		t.Errorf("moved entry = %+v", p)
	}
	wantMsgs := []string{
		"Move post: tech/welcome -> life/welcome",
		"Move post: tech/welcome -> life/welcome",
		"Update index: Welcome",
	}
	if msgs := commitMessages(mem); !slices.Equal(msgs, wantMsgs) {
		t.Errorf("commits = %q", msgs)
	}
}

func TestEditorEditInPlace(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	e := newTestEditor(s)
	f, err := e.EditPost(t.Context(), blog.Locator{Category: "tech", Slug: "welcome"})
	if err != nil {
		t.Fatal(err)
	}
	f.Title = "Welcome back"
	f.Body = "# Welcome back\n"
	if _, err := e.Save(t.Context(), f); err != nil {
		t.Fatal(err)
	}
	got, _ := mem.Get(t.Context(), "posts/tech/welcome.md")
	if string(got.Content) != "# Welcome back\n" {
		t.Errorf("body = %q", got.Content)
	}
	if p, _ := remoteIndex(t, mem).Post(blog.Locator{Category: "tech", Slug: "welcome"}); p.Title != "Welcome back" {
		t.Errorf("entry = %+v", p)
	}
	if msgs := commitMessages(mem); !slices.Equal(msgs, []string{"Update post: Welcome back", "Update index: Welcome back"}) {
		t.Errorf("commits = %q", msgs)
	}
	if _, err := e.EditPost(t.Context(), blog.Locator{Category: "tech", Slug: "nope"}); !apierrors.IsNotFound(err) {
		t.Errorf("missing post: %v", err)
	}
}

func TestEditorValidation(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	e := newTestEditor(s)
	if _, err := e.Save(t.Context(), Form{Title: "x"}); !apierrors.Is(err, apierrors.ErrValidationFailed) {
		t.Errorf("save while idle: %v", err)
	}
	base, _ := e.NewPost()
	tests := []struct {
		name string
		edit func(*Form)
	}{
		{"no title", func(f *Form) { f.Category = "life" }},
		{"no category", func(f *Form) { f.Title = "T" }},
		{"no author", func(f *Form) { f.Title, f.Category, f.Author = "T", "life", " " }},
		{"no date", func(f *Form) { f.Title, f.Category, f.Date = "T", "life", "" }},
		{"bad slug", func(f *Form) { f.Title, f.Category, f.Slug = "T", "life", "Not A Slug" }},
		{"slugless title", func(f *Form) { f.Title, f.Category = "!!!", "life" }},
		{"duplicate", func(f *Form) { f.Title, f.Category = "Welcome", "tech" }},
		{"unknown category", func(f *Form) { f.Title, f.Category = "T", "nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base
			tt.edit(&f)
			_, err := e.Save(t.Context(), f)
			if code := apierrors.CodeOf(err); code != apierrors.ErrValidationFailed && code != apierrors.ErrNotFound {
				t.Errorf("got %v", err)
			}
			if e.State() != EditorCreating {
				t.Errorf("state = %s", e.State())
			}
		})
	}
	if n := len(mem.Commits()); n != 0 {
		t.Errorf("%d commits made", n)
	}
	var apiErr *apierrors.APIError
	f := base
	f.Category = "life"
	_, err := e.Save(t.Context(), f)
	if !errors.As(err, &apiErr) || apiErr.Details()["title"] == nil {
		t.Errorf("missing field details: %v", err)
	}
}

func TestEditorCreateCompensation(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	e := newTestEditor(s)
	f, _ := e.NewPost()
	f.Title, f.Category, f.Body = "Hello World", "life", "x"

	mem.FailNext("put", blog.IndexPath, apierrors.Conflict("stale"))
	if _, err := e.Save(t.Context(), f); !apierrors.IsConflict(err) {
		t.Fatalf("got %v", err)
	}
	if e.State() != EditorCreating {
		t.Errorf("state = %s", e.State())
	}
	if slices.Contains(mem.Paths(), "posts/life/hello-world.md") {
		t.Error("new file not removed")
	}
	// The draft is intact and can be saved again.
	if _, err := e.Save(t.Context(), f); err != nil {
		t.Fatal(err)
	}
}

func TestEditorMoveCompensation(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	e := newTestEditor(s)
	f, err := e.EditPost(t.Context(), blog.Locator{Category: "tech", Slug: "welcome"})
	if err != nil {
		t.Fatal(err)
	}
	f.Category, f.Subcategory = "tech", "go"
	boom := apierrors.RemoteUnavailable("boom", errors.New("connection reset"))
	mem.FailNext("put", blog.IndexPath, boom)
	if _, err := e.Save(t.Context(), f); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if e.State() != EditorEditing {
		t.Errorf("state = %s", e.State())
	}
	if got := mem.Paths(); !slices.Equal(got, []string{"posts/index.json", "posts/tech/welcome.md"}) {
		t.Errorf("paths = %q", got)
	}
	restored, _ := mem.Get(t.Context(), "posts/tech/welcome.md")
	if string(restored.Content) != "# Welcome\n" {
		t.Errorf("restored = %q", restored.Content)
	}

	// Failing the old file deletion removes the new file.
	mem.FailNext("delete", "posts/tech/welcome.md", boom)
	if _, err := e.EditPost(t.Context(), blog.Locator{Category: "tech", Slug: "welcome"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Save(t.Context(), f); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if got := mem.Paths(); !slices.Equal(got, []string{"posts/index.json", "posts/tech/welcome.md"}) {
		t.Errorf("paths = %q", got)
	}
}

func TestEditorCompensationFailure(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	e := newTestEditor(s)
	f, _ := e.NewPost()
	f.Title, f.Category = "Hello World", "life"
	commitErr := apierrors.RemoteUnavailable("commit", errors.New("timeout"))
	undoErr := apierrors.RemoteUnavailable("undo", errors.New("timeout"))
	mem.FailNext("put", blog.IndexPath, commitErr)
	mem.FailNext("delete", "", undoErr)
	_, err := e.Save(t.Context(), f)
	if !errors.Is(err, commitErr) || !errors.Is(err, undoErr) {
		t.Fatalf("got %v", err)
	}
}

// blockingStore stalls writes to post files until released.
type blockingStore struct {
	contents.Store
	started chan struct{}
	release chan struct{}
}

func (b *blockingStore) Put(ctx context.Context, path string, content []byte, message, sha string) (string, error) {
	if path != blog.IndexPath {
		close(b.started)
		<-b.release
	}
	return b.Store.Put(ctx, path, content, message, sha)
}

func TestEditorBusy(t *testing.T) {
	store := &blockingStore{Store: seededMemory(), started: make(chan struct{}), release: make(chan struct{})}
	s := newTestSession(t, store)
	e := newTestEditor(s)
	f, _ := e.NewPost()
	f.Title, f.Category = "Hello World", "life"

	done := make(chan error, 1)
	go func() {
		_, err := e.Save(context.Background(), f)
		done <- err
	}()
	<-store.started
	if e.State() != EditorSaving {
		t.Errorf("state = %s", e.State())
	}
	if _, err := e.Save(t.Context(), f); !apierrors.Is(err, apierrors.ErrBusy) {
		t.Errorf("second save: %v", err)
	}
	if _, err := e.NewPost(); !apierrors.Is(err, apierrors.ErrBusy) {
		t.Errorf("NewPost: %v", err)
	}
	if err := e.Cancel(); !apierrors.Is(err, apierrors.ErrBusy) {
		t.Errorf("Cancel: %v", err)
	}
	if err := e.DeletePost(t.Context(), blog.Locator{Category: "tech", Slug: "welcome"}); !apierrors.Is(err, apierrors.ErrBusy) {
		t.Errorf("DeletePost: %v", err)
	}
	close(store.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if e.State() != EditorIdle {
		t.Errorf("state = %s", e.State())
	}
}

func TestDeletePost(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	e := newTestEditor(s)
	loc := blog.Locator{Category: "tech", Slug: "welcome"}

	boom := apierrors.RemoteUnavailable("boom", errors.New("down"))
	mem.FailNext("put", blog.IndexPath, boom)
	if err := e.DeletePost(t.Context(), loc); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if f, err := mem.Get(t.Context(), "posts/tech/welcome.md"); err != nil || string(f.Content) != "# Welcome\n" {
		t.Fatalf("file not restored: %v", err)
	}

	if err := e.DeletePost(t.Context(), loc); err != nil {
		t.Fatal(err)
	}
	if slices.Contains(mem.Paths(), "posts/tech/welcome.md") {
		t.Error("file not deleted")
	}
	if _, ok := remoteIndex(t, mem).Post(loc); ok {
		t.Error("entry not removed")
	}
	msgs := commitMessages(mem)
	if len(msgs) < 2 || !slices.Equal(msgs[len(msgs)-2:], []string{"Delete post: Welcome", "Remove from index: Welcome"}) {
		t.Errorf("commits = %q", msgs)
	}
	if err := e.DeletePost(t.Context(), loc); !apierrors.IsNotFound(err) {
		t.Errorf("second delete: %v", err)
	}
}

func TestDeletePostMissingFile(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	if err := mem.Delete(t.Context(), "posts/tech/welcome.md", contents.BlobSHA([]byte("# Welcome\n")), "out of band"); err != nil {
		t.Fatal(err)
	}
	problems, err := NewDashboard(s).Check(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 1 || problems[0].Path != "posts/tech/welcome.md" {
		t.Errorf("problems = %+v", problems)
	}
	if err := newTestEditor(s).DeletePost(t.Context(), blog.Locator{Category: "tech", Slug: "welcome"}); err != nil {
		t.Fatal(err)
	}
	if remoteIndex(t, mem).TotalPosts() != 0 {
		t.Error("entry not removed")
	}
}

func TestCategories(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	c := NewCategories(s)

	list, err := c.List()
	if err != nil {
		t.Fatal(err)
	}
	want := []CategorySummary{
		{Name: "Tech", Slug: "tech", Posts: 1, Subcategories: []SubcategorySummary{{Name: "Go", Slug: "go", Removable: true}}},
		{Name: "Life", Slug: "life", Removable: true, Subcategories: []SubcategorySummary{}},
	}
	if !reflect.DeepEqual(list, want) {
		t.Errorf("List = %+v", list)
	}

	cat, err := c.AddCategory(t.Context(), " New Stuff ")
	if err != nil {
		t.Fatal(err)
	}
	if cat.Slug != "new-stuff" || cat.Name != "New Stuff" {
		t.Errorf("category = %+v", cat)
	}
	if _, err := c.AddCategory(t.Context(), "new_stuff"); !apierrors.Is(err, apierrors.ErrValidationFailed) {
		t.Errorf("duplicate: %v", err)
	}
	sub, err := c.AddSubcategory(t.Context(), "new-stuff", "Deep Dive")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Slug != "deep-dive" {
		t.Errorf("subcategory = %+v", sub)
	}
	if err := c.RemoveCategory(t.Context(), "tech"); !apierrors.Is(err, apierrors.ErrValidationFailed) {
		t.Errorf("remove non-empty: %v", err)
	}
	if err := c.RemoveSubcategory(t.Context(), "new-stuff", "deep-dive"); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveCategory(t.Context(), "new-stuff"); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveSubcategory(t.Context(), "tech", "go"); err != nil {
		t.Fatal(err)
	}
	wantMsgs := []string{
		"Add category: New Stuff",
		"Add subcategory: Deep Dive",
		"Remove subcategory: Deep Dive",
		"Remove category: New Stuff",
		"Remove subcategory: Go",
	}
	if msgs := commitMessages(mem); !slices.Equal(msgs, wantMsgs) {
		t.Errorf("commits = %q", msgs)
	}
	if got := remoteIndex(t, mem); len(got.Categories) != 2 || len(got.Categories[0].Subcategories) != 0 {
		t.Errorf("remote = %+v", got)
	}
}

func TestCategoriesConcurrentRemoval(t *testing.T) {
	mem := seededMemory()
	first := newTestSession(t, mem)
	if _, err := NewCategories(first).AddCategory(t.Context(), "Misc"); err != nil {
		t.Fatal(err)
	}
	second := newTestSession(t, mem)

	if err := NewCategories(first).RemoveCategory(t.Context(), "life"); err != nil {
		t.Fatal(err)
	}
	c2 := NewCategories(second)
	if err := c2.RemoveCategory(t.Context(), "misc"); !apierrors.IsConflict(err) {
		t.Fatalf("got %v", err)
	}
	// The conflict re-fetched the index; retrying succeeds.
	if err := c2.RemoveCategory(t.Context(), "misc"); err != nil {
		t.Fatal(err)
	}
	got := remoteIndex(t, mem)
	if len(got.Categories) != 1 || got.Categories[0].Slug != "tech" {
		t.Errorf("remote = %+v", got.Categories)
	}
}

func TestDashboard(t *testing.T) {
	mem := seededMemory()
	s := newTestSession(t, mem)
	e := newTestEditor(s)
	for _, title := range []string{"Older", "Newer"} {
		f, _ := e.NewPost()
		f.Title, f.Category, f.Subcategory = title, "tech", "go"
		if title == "Older" {
			f.Date = "September 1, 2025"
		}
		if _, err := e.Save(t.Context(), f); err != nil {
			t.Fatal(err)
		}
	}
	d := NewDashboard(s)
	posts, err := d.Posts()
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, p := range posts {
		order = append(order, p.Slug)
	}
	if !slices.Equal(order, []string{"newer", "welcome", "older"}) {
		t.Errorf("order = %v", order)
	}
	if posts[0].Label() != "Tech / Go" {
		t.Errorf("label = %q", posts[0].Label())
	}
	entry, body, err := d.Post(t.Context(), blog.Locator{Category: "tech", Slug: "welcome"})
	if err != nil || body != "# Welcome\n" || entry.CategoryName != "Tech" {
		t.Errorf("Post = %+v %q %v", entry, body, err)
	}
	if _, err := NewDashboard(NewSession(connectTo(mem), nil)).Posts(); !apierrors.Is(err, apierrors.ErrAuthInvalid) {
		t.Errorf("inactive session: %v", err)
	}
}

func TestCredentialStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "credential")
	c := NewCredentialStore(path, [32]byte{42})
	if got, err := c.Load(); err != nil || got != "" {
		t.Fatalf("empty Load = %q, %v", got, err)
	}
	if err := c.Save("ghp_secret"); err != nil {
		t.Fatal(err)
	}
	if got, err := c.Load(); err != nil || got != "ghp_secret" {
		t.Fatalf("Load = %q, %v", got, err)
	}
	if _, err := NewCredentialStore(path, [32]byte{7}).Load(); err == nil {
		t.Error("wrong key decrypted the credential")
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
	if got, _ := c.Load(); got != "" {
		t.Errorf("Load after Clear = %q", got)
	}
}
