package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/standardbeagle/refract/internal/backend"
	"github.com/standardbeagle/refract/internal/config"
	"github.com/standardbeagle/refract/internal/refactorerr"
	"github.com/standardbeagle/refract/internal/source"
)

func buildResolver(t *testing.T, files map[string]string) *Resolver {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
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
	return New(snap, zap.NewNop())
}

func TestResolveExactAndSuffix(t *testing.T) {
	r := buildResolver(t, map[string]string{
		"acme/auth.py": "def login(user):\n    return user\n",
		"acme/__init__.py": "",
	})

	sym, err := r.Resolve("acme.auth.login")
	if err != nil {
		t.Fatalf("exact resolve: %v", err)
	}
	if sym.QualifiedName != "acme.auth.login" {
		t.Errorf("qname = %q", sym.QualifiedName)
	}

	sym, err = r.Resolve("login")
	if err != nil {
		t.Fatalf("suffix resolve: %v", err)
	}
	if sym.Name != "login" {
		t.Errorf("name = %q", sym.Name)
	}

	sym, err = r.Resolve("auth.login")
	if err != nil {
		t.Fatalf("partial suffix resolve: %v", err)
	}
	if sym.QualifiedName != "acme.auth.login" {
		t.Errorf("qname = %q", sym.QualifiedName)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	r := buildResolver(t, map[string]string{
		"a.py": "def help():\n    pass\n",
		"b.py": "def help():\n    pass\n",
	})
	_, err := r.Resolve("help")
	if err == nil {
		t.Fatal("expected ambiguity")
	}
	re, ok := refactorerr.As(err)
	if !ok || re.Kind != refactorerr.KindAmbiguousSymbol {
		t.Fatalf("err = %v", err)
	}
	if len(re.Candidates) != 2 || re.Candidates[0] != "a.help" || re.Candidates[1] != "b.help" {
		t.Errorf("candidates = %v", re.Candidates)
	}

	// A longer suffix disambiguates.
	sym, err := r.Resolve("a.help")
	if err != nil {
		t.Fatalf("qualified resolve: %v", err)
	}
	if sym.QualifiedName != "a.help" {
		t.Errorf("qname = %q", sym.QualifiedName)
	}
}

func TestResolveNotFoundSuggests(t *testing.T) {
	r := buildResolver(t, map[string]string{
		"util.py": "def helper(x):\n    return x\n\ndef handle(y):\n    return y\n",
	})
	_, err := r.Resolve("helprs")
	re, ok := refactorerr.As(err)
	if !ok || re.Kind != refactorerr.KindSymbolNotFound {
		t.Fatalf("err = %v", err)
	}
	if len(re.Suggestions) == 0 {
		t.Fatal("no suggestions")
	}
	if re.Suggestions[0] != "util.helper" {
		t.Errorf("suggestions = %v, want util.helper first", re.Suggestions)
	}
}

func TestFindSubstringAndGlob(t *testing.T) {
	r := buildResolver(t, map[string]string{
		"a.py": "def help():\n    pass\n",
		"b.py": "def help():\n    pass\n\ndef helper():\n    pass\n",
	})

	matches, total, partial := r.Find(context.Background(), "help", 100)
	if total != 3 || partial {
		t.Errorf("total = %d partial = %v", total, partial)
	}
	if matches[0].QualifiedName != "a.help" {
		t.Errorf("order = %v", matches)
	}

	matches, total, _ = r.Find(context.Background(), "help*", 100)
	if total != 3 {
		t.Errorf("glob total = %d", total)
	}

	matches, total, _ = r.Find(context.Background(), "HELP", 100)
	if total != 3 {
		t.Errorf("case-insensitive total = %d", total)
	}

	_, total, partial = r.Find(context.Background(), "help", 2)
	if total != 3 || !partial {
		t.Errorf("capped: total = %d partial = %v", total, partial)
	}
	if len(matches) == 0 {
		t.Error("no matches")
	}

	_, total, _ = r.Find(context.Background(), "nonexistent", 100)
	if total != 0 {
		t.Errorf("nonexistent total = %d", total)
	}
}

func TestReferences(t *testing.T) {
	r := buildResolver(t, map[string]string{
		"lib.py": "def greet(name):\n    return name\n",
		"app.py": "from lib import greet\n\ndef main():\n    return greet(\"hi\")\n",
	})
	sym, err := r.Resolve("greet")
	if err != nil {
		t.Fatal(err)
	}
	refs := r.References(sym)
	// Definition, the from-import clause token, and the call site.
	if len(refs) != 3 {
		t.Fatalf("refs = %+v, want 3", refs)
	}
	if !refs[0].IsDefinition {
		t.Error("definition should come first")
	}
	for _, ref := range refs[1:] {
		if ref.IsDefinition {
			t.Error("non-definition occurrence flagged as definition")
		}
	}
}

func TestReferencesViaModuleImport(t *testing.T) {
	r := buildResolver(t, map[string]string{
		"lib.py": "def greet(name):\n    return name\n",
		"app.py": "import lib\n\ndef main():\n    return lib.greet(\"hi\")\n",
	})
	sym, err := r.Resolve("greet")
	if err != nil {
		t.Fatal(err)
	}
	refs := r.References(sym)
	if len(refs) != 2 {
		t.Fatalf("refs = %d, want 2 (definition and lib.greet call)", len(refs))
	}
}

func TestShadowingExcludesLocalUse(t *testing.T) {
	r := buildResolver(t, map[string]string{
		"m.py": "x = 1\n\ndef f():\n    x = 5\n    return x\n\ndef g():\n    return x\n",
	})
	sym, err := r.Resolve("m.x")
	if err != nil {
		t.Fatal(err)
	}
	refs := r.References(sym)
	// Definition plus the use in g. The local x inside f shadows.
	if len(refs) != 2 {
		t.Fatalf("refs = %+v, want 2", refs)
	}
	for _, ref := range refs {
		if ref.Line == 4 || ref.Line == 5 {
			t.Errorf("shadowed occurrence at line %d included", ref.Line)
		}
	}
}

func TestMethodReferencesViaSelf(t *testing.T) {
	r := buildResolver(t, map[string]string{
		"svc.py": "class Service:\n    def ping(self):\n        return 1\n\n    def check(self):\n        return self.ping()\n",
	})
	sym, err := r.Resolve("ping")
	if err != nil {
		t.Fatal(err)
	}
	if sym.QualifiedName != "svc.Service.ping" {
		t.Fatalf("qname = %q", sym.QualifiedName)
	}
	refs := r.References(sym)
	if len(refs) != 2 {
		t.Fatalf("refs = %d, want definition plus self.ping call", len(refs))
	}
}

func TestSuggestStemMatch(t *testing.T) {
	r := buildResolver(t, map[string]string{
		"m.py": "def handles(x):\n    return x\n",
	})
	got := r.Suggest("handling")
	if len(got) == 0 {
		t.Fatal("expected stem-based suggestion")
	}
	if got[0] != "m.handles" {
		t.Errorf("suggestions = %v", got)
	}
}

func TestBoundAt(t *testing.T) {
	r := buildResolver(t, map[string]string{
		"m.py": "y = 1\n\ndef f(a):\n    b = 2\n    return a + b\n",
	})
	sym, err := r.Resolve("m.f")
	if err != nil {
		t.Fatal(err)
	}
	file := sym.File
	if !r.BoundAt(file, []string{"f"}, "b") {
		t.Error("b should be bound inside f")
	}
	if !r.BoundAt(file, []string{"f"}, "y") {
		t.Error("module symbol y should be visible inside f")
	}
	if r.BoundAt(file, nil, "b") {
		t.Error("b should not be visible at module level")
	}
}
