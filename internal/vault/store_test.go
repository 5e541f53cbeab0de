package vault

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func newTestStore(t *testing.T, ignore, include []string) *DirStore {
	t.Helper()
	return NewDirStore(t.TempDir(), ignore, include)
}

func seedFile(t *testing.T, store *DirStore, relPath, content string) {
	t.Helper()
	absPath := filepath.Join(store.Root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		t.Fatalf("mkdir for %s: %v", relPath, err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
		t.Fatalf("seed %s: %v", relPath, err)
	}
}

func listPaths(t *testing.T, store *DirStore, folder string) []string {
	t.Helper()
	handles, err := store.ListDocuments(folder)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	paths := make([]string, len(handles))
	for i, h := range handles {
		paths[i] = h.Path
	}
	sort.Strings(paths)
	return paths
}

func TestListDocuments_MarkdownOnly(t *testing.T) {
	store := newTestStore(t, nil, nil)
	seedFile(t, store, "Notes/one.md", "one")
	seedFile(t, store, "Notes/deep/two.md", "two")
	seedFile(t, store, "Notes/image.png", "binary")
	seedFile(t, store, "Notes/notes.txt", "text")

	got := listPaths(t, store, "Notes")
	want := []string{"Notes/deep/two.md", "Notes/one.md"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}
}

func TestListDocuments_IgnorePrunesFolders(t *testing.T) {
	store := newTestStore(t, []string{"**/.trash/**", "**/.trash"}, nil)
	seedFile(t, store, "Notes/keep.md", "keep")
	seedFile(t, store, "Notes/.trash/gone.md", "gone")

	got := listPaths(t, store, "Notes")
	if len(got) != 1 || got[0] != "Notes/keep.md" {
		t.Errorf("expected only the kept file, got %v", got)
	}
}

func TestListDocuments_IgnoreMatchesFiles(t *testing.T) {
	store := newTestStore(t, []string{"**/draft-*.md"}, nil)
	seedFile(t, store, "Notes/final.md", "final")
	seedFile(t, store, "Notes/draft-wip.md", "wip")

	got := listPaths(t, store, "Notes")
	if len(got) != 1 || got[0] != "Notes/final.md" {
		t.Errorf("expected draft filtered out, got %v", got)
	}
}

func TestListDocuments_IncludePatternsFilterFiles(t *testing.T) {
	store := newTestStore(t, nil, []string{"Notes/projects/**"})
	seedFile(t, store, "Notes/projects/in.md", "in")
	seedFile(t, store, "Notes/other/out.md", "out")

	got := listPaths(t, store, "Notes")
	if len(got) != 1 || got[0] != "Notes/projects/in.md" {
		t.Errorf("expected only included subtree, got %v", got)
	}
}

func TestListDocuments_IncludeDoesNotPruneParents(t *testing.T) {
	// A file-level include pattern must still see files in nested
	// folders even though the folder paths themselves never match it.
	store := newTestStore(t, nil, []string{"**/*.md"})
	seedFile(t, store, "Notes/deep/nested/doc.md", "doc")

	got := listPaths(t, store, "Notes")
	if len(got) != 1 || got[0] != "Notes/deep/nested/doc.md" {
		t.Errorf("expected nested file listed, got %v", got)
	}
}

func TestReadWriteDocument(t *testing.T) {
	store := newTestStore(t, nil, nil)
	seedFile(t, store, "Notes/doc.md", "original")

	handles, err := store.ListDocuments("Notes")
	if err != nil || len(handles) != 1 {
		t.Fatalf("ListDocuments: %v (%d handles)", err, len(handles))
	}
	h := handles[0]

	content, err := store.ReadDocument(h)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if content != "original" {
		t.Errorf("expected %q, got %q", "original", content)
	}

	if err := store.WriteDocument(h, "replaced"); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	content, err = store.ReadDocument(h)
	if err != nil {
		t.Fatalf("ReadDocument after write: %v", err)
	}
	if content != "replaced" {
		t.Errorf("expected %q, got %q", "replaced", content)
	}
}

func TestCreateDocument_MakesParents(t *testing.T) {
	store := newTestStore(t, nil, nil)

	if err := store.CreateDocument("Notes/sub/new.md", "hello"); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	if store.Entry("Notes/sub/new.md") != EntryFile {
		t.Error("expected created file to exist")
	}
	got := listPaths(t, store, "Notes")
	if len(got) != 1 || got[0] != "Notes/sub/new.md" {
		t.Errorf("expected created file listed, got %v", got)
	}
}

func TestCreateDocument_Overwrites(t *testing.T) {
	store := newTestStore(t, nil, nil)
	seedFile(t, store, "Notes/doc.md", "old")

	if err := store.CreateDocument("Notes/doc.md", "new"); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	content, err := store.ReadDocument(Handle{Path: "Notes/doc.md"})
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if content != "new" {
		t.Errorf("expected overwrite, got %q", content)
	}
}

func TestEnsureFolderAndEntry(t *testing.T) {
	store := newTestStore(t, nil, nil)

	if store.Entry("Notes") != EntryAbsent {
		t.Error("expected missing folder to report absent")
	}
	if err := store.EnsureFolder("Notes"); err != nil {
		t.Fatalf("EnsureFolder: %v", err)
	}
	if store.Entry("Notes") != EntryFolder {
		t.Error("expected folder after EnsureFolder")
	}
	if err := store.EnsureFolder("Notes"); err != nil {
		t.Errorf("EnsureFolder must be idempotent: %v", err)
	}

	seedFile(t, store, "Notes/doc.md", "x")
	if store.Entry("Notes/doc.md") != EntryFile {
		t.Error("expected file entry")
	}
}
