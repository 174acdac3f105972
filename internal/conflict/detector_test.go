package conflict

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/standardbeagle/refract/internal/backend"
	"github.com/standardbeagle/refract/internal/config"
	"github.com/standardbeagle/refract/internal/resolver"
	"github.com/standardbeagle/refract/internal/source"
	"github.com/standardbeagle/refract/internal/types"
)

func setup(t *testing.T, files map[string]string) (*resolver.Resolver, backend.Backend) {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(dir, rel), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	py, err := backend.NewPython()
	if err != nil {
		t.Fatal(err)
	}
	reg := backend.NewRegistry()
	reg.Register(py)
	cfg := config.Default()
	cfg.Project.Root = dir
	snap, err := source.Load(context.Background(), cfg, reg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(snap.Close)
	return resolver.New(snap, zap.NewNop()), py
}

func resolveRefs(t *testing.T, r *resolver.Resolver, name string) (*types.Symbol, []types.Reference) {
	t.Helper()
	sym, err := r.Resolve(name)
	if err != nil {
		t.Fatal(err)
	}
	return sym, r.References(sym)
}

func TestRenameToExistingModuleSymbolConflicts(t *testing.T) {
	r, b := setup(t, map[string]string{
		"a.py": "x = 1\ny = 2\n\ndef use():\n    return x + y\n",
	})
	sym, refs := resolveRefs(t, r, "a.x")
	conflicts := CheckRename(r, b, sym, "y", refs)
	if len(conflicts) == 0 {
		t.Fatal("renaming x to y must conflict with existing y")
	}
}

func TestRenameToFreshNameIsClean(t *testing.T) {
	r, b := setup(t, map[string]string{
		"a.py": "x = 1\n\ndef use():\n    return x\n",
	})
	sym, refs := resolveRefs(t, r, "a.x")
	conflicts := CheckRename(r, b, sym, "count", refs)
	if len(conflicts) != 0 {
		t.Fatalf("conflicts = %v", conflicts)
	}
}

func TestRenameToReservedWord(t *testing.T) {
	r, b := setup(t, map[string]string{
		"a.py": "x = 1\n",
	})
	sym, refs := resolveRefs(t, r, "a.x")
	conflicts := CheckRename(r, b, sym, "lambda", refs)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %v", conflicts)
	}
}

func TestRenameToInvalidIdentifier(t *testing.T) {
	r, b := setup(t, map[string]string{
		"a.py": "x = 1\n",
	})
	sym, refs := resolveRefs(t, r, "a.x")
	if got := CheckRename(r, b, sym, "2bad", refs); len(got) != 1 {
		t.Fatalf("conflicts = %v", got)
	}
}

func TestRenameConflictAcrossFiles(t *testing.T) {
	r, b := setup(t, map[string]string{
		"lib.py": "def greet():\n    pass\n",
		"app.py": "from lib import greet\n\nwave = 1\n\ndef main():\n    return greet()\n",
	})
	sym, refs := resolveRefs(t, r, "greet")
	conflicts := CheckRename(r, b, sym, "wave", refs)
	if len(conflicts) == 0 {
		t.Fatal("wave is bound in a referencing file, must conflict")
	}
}

func TestCheckExtract(t *testing.T) {
	r, b := setup(t, map[string]string{
		"m.py": "def login(user):\n    return user\n",
	})
	sym, _ := resolveRefs(t, r, "login")

	if got := CheckExtract(r, b, sym.File, "is_adult"); len(got) != 0 {
		t.Errorf("fresh name conflicts = %v", got)
	}
	if got := CheckExtract(r, b, sym.File, "login"); len(got) == 0 {
		t.Error("existing function name must conflict")
	}
	if got := CheckExtract(r, b, sym.File, "class"); len(got) == 0 {
		t.Error("reserved word must conflict")
	}
}
