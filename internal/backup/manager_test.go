package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/standardbeagle/refract/internal/refactorerr"
	"github.com/standardbeagle/refract/internal/types"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "backups"), zap.NewNop())
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateAndRestore(t *testing.T) {
	m := newManager(t)
	path := writeTemp(t, "m.py", "x = 1\n")

	bk, err := m.Create([]string{path})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if bk.ID == "" {
		t.Fatal("empty backup id")
	}

	if err := os.WriteFile(path, []byte("x = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.Restore(bk.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "x = 1\n" {
		t.Errorf("restored content = %q", content)
	}
}

func TestRestoreUnknownID(t *testing.T) {
	m := newManager(t)
	err := m.Restore("no-such-backup")
	re, ok := refactorerr.As(err)
	if !ok || re.Kind != refactorerr.KindBackupNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestApplyDescendingOrder(t *testing.T) {
	m := newManager(t)
	content := "def greet(name):\n    return greet\n"
	path := writeTemp(t, "m.py", content)

	// Two edits on one file: both offsets are relative to the original.
	cs := &types.ChangeSet{}
	first := 4 // "greet" in def
	second := 28
	cs.Add(types.Edit{File: path, Range: types.ByteRange{Start: first, End: first + 5}, Replacement: "welcome"})
	cs.Add(types.Edit{File: path, Range: types.ByteRange{Start: second, End: second + 5}, Replacement: "welcome"})

	bk, err := m.Apply("rename", cs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := os.ReadFile(path)
	want := "def welcome(name):\n    return welcome\n"
	if string(got) != want {
		t.Errorf("applied = %q, want %q", got, want)
	}
	if bk == nil || bk.ID == "" {
		t.Error("apply must produce a backup")
	}
}

func TestApplyInvalidRangeRollsBack(t *testing.T) {
	m := newManager(t)
	original := "x = 1\n"
	path := writeTemp(t, "m.py", original)

	cs := &types.ChangeSet{}
	cs.Add(types.Edit{File: path, Range: types.ByteRange{Start: 0, End: 3}, Replacement: "y"})
	cs.Add(types.Edit{File: path, Range: types.ByteRange{Start: 100, End: 200}, Replacement: "boom"})

	_, err := m.Apply("rename", cs)
	re, ok := refactorerr.As(err)
	if !ok || re.Kind != refactorerr.KindApply {
		t.Fatalf("err = %v", err)
	}
	if !re.RolledBack {
		t.Error("rollback should have succeeded")
	}
	got, _ := os.ReadFile(path)
	if string(got) != original {
		t.Errorf("file = %q, want original restored", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	m := newManager(t)
	path := writeTemp(t, "m.py", "x = 1\n")

	first, err := m.Create([]string{path})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	second, err := m.Create([]string{path})
	if err != nil {
		t.Fatal(err)
	}

	infos, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("infos = %d", len(infos))
	}
	if infos[0].ID != second.ID || infos[1].ID != first.ID {
		t.Error("list should be newest first")
	}
}

func TestListEmptyDir(t *testing.T) {
	m := newManager(t)
	infos, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("infos = %v", infos)
	}
}

func TestCleanupRetainsRecent(t *testing.T) {
	m := newManager(t)
	path := writeTemp(t, "m.py", "x = 1\n")
	for i := 0; i < 3; i++ {
		if _, err := m.Create([]string{path}); err != nil {
			t.Fatal(err)
		}
	}

	// maxAge zero makes everything stale, but keep=2 must survive.
	removed, err := m.Cleanup(0, 2)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	infos, _ := m.List()
	if len(infos) != 2 {
		t.Errorf("remaining = %d", len(infos))
	}
}
