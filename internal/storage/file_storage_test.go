// internal/storage/file_storage_test.go
package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

type testRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONRoundTrip(t *testing.T) {
	fs := newTestStorage(t)

	in := testRecord{Name: "Ashford", Count: 3}
	if err := fs.SaveJSONFile("saves", "zone.json", in); err != nil {
		t.Fatal(err)
	}

	var out testRecord
	if err := fs.LoadJSONFile("saves", "zone.json", &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestSaveOverwriteInvalidatesCache(t *testing.T) {
	fs := newTestStorage(t)

	if err := fs.SaveJSONFile("saves", "a.json", testRecord{Count: 1}); err != nil {
		t.Fatal(err)
	}
	var first testRecord
	if err := fs.LoadJSONFile("saves", "a.json", &first); err != nil {
		t.Fatal(err)
	}

	if err := fs.SaveJSONFile("saves", "a.json", testRecord{Count: 2}); err != nil {
		t.Fatal(err)
	}
	var second testRecord
	if err := fs.LoadJSONFile("saves", "a.json", &second); err != nil {
		t.Fatal(err)
	}
	if second.Count != 2 {
		t.Errorf("count after overwrite = %d, want 2", second.Count)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	fs := newTestStorage(t)
	if err := fs.SaveTextFile("saves", "a.txt", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(fs.BaseDir, "saves"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.txt" {
		t.Errorf("dir entries = %v, want only a.txt", entries)
	}
}

func TestFileExistsAndDelete(t *testing.T) {
	fs := newTestStorage(t)

	if fs.FileExists("saves", "ghost.json") {
		t.Error("missing file reported as existing")
	}
	if err := fs.SaveTextFile("saves", "x.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if !fs.FileExists("saves", "x.json") {
		t.Error("saved file not found")
	}
	if err := fs.DeleteFile("saves", "x.json"); err != nil {
		t.Fatal(err)
	}
	if fs.FileExists("saves", "x.json") {
		t.Error("deleted file still exists")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	fs := newTestStorage(t)
	var out testRecord
	if err := fs.LoadJSONFile("saves", "nope.json", &out); err == nil {
		t.Error("loading a missing file should fail")
	}
}

func TestCanonicalSaveName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Game!", "my_game"},
		{"  Camp 2 ", "camp_2"},
		{"slug-ok_1", "slug-ok_1"},
		{"!!!", "autosave"},
		{"", "autosave"},
	}
	for _, tt := range tests {
		if got := CanonicalSaveName(tt.in); got != tt.want {
			t.Errorf("CanonicalSaveName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListSavesOrderAndFilter(t *testing.T) {
	fs := newTestStorage(t)

	if err := fs.SaveTextFile("saves", "old.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := fs.SaveTextFile("saves", "notes.txt", []byte("skip me")); err != nil {
		t.Fatal(err)
	}
	if err := fs.SaveTextFile("saves", "new.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	// Force a clear ordering regardless of filesystem timestamp granularity.
	oldPath := filepath.Join(fs.BaseDir, "saves", "old.json")
	stat, err := os.Stat(oldPath)
	if err != nil {
		t.Fatal(err)
	}
	older := stat.ModTime().Add(-time.Second)
	if err := os.Chtimes(oldPath, older, older); err != nil {
		t.Fatal(err)
	}

	saves, err := fs.ListSaves("saves")
	if err != nil {
		t.Fatal(err)
	}
	if len(saves) != 2 {
		t.Fatalf("saves = %+v, want the two json files", saves)
	}
	if saves[0].Name != "new" || saves[1].Name != "old" {
		t.Errorf("order = %q, %q, want newest first", saves[0].Name, saves[1].Name)
	}
}

func TestListSavesMissingDirIsEmpty(t *testing.T) {
	fs := newTestStorage(t)
	saves, err := fs.ListSaves("never_created")
	if err != nil || len(saves) != 0 {
		t.Errorf("saves = %v, err = %v, want empty and nil", saves, err)
	}
}
