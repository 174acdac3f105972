package planner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/standardbeagle/refract/internal/anonelem"
	"github.com/standardbeagle/refract/internal/backend"
	"github.com/standardbeagle/refract/internal/config"
	"github.com/standardbeagle/refract/internal/refactorerr"
	"github.com/standardbeagle/refract/internal/resolver"
	"github.com/standardbeagle/refract/internal/source"
	"github.com/standardbeagle/refract/internal/types"
)

type fixture struct {
	file *source.File
	res  *resolver.Resolver
}

func load(t *testing.T, name, content string) *fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
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
	return &fixture{file: snap.Files[path], res: resolver.New(snap, zap.NewNop())}
}

func (fx *fixture) element(t *testing.T, fnName, id string) (*types.Symbol, *types.AnonymousElement) {
	t.Helper()
	sym, err := fx.res.Resolve(fnName)
	if err != nil {
		t.Fatal(err)
	}
	el, err := anonelem.Locate(fx.file, sym, id)
	if err != nil {
		t.Fatal(err)
	}
	if el == nil {
		t.Fatalf("element %s not found", id)
	}
	return sym, el
}

// apply runs the change set against in-memory content for verification.
func apply(t *testing.T, content string, cs *types.ChangeSet) string {
	t.Helper()
	edits := append([]types.Edit{}, cs.Edits...)
	for i := len(edits) - 1; i >= 0; i-- {
		e := edits[i]
		content = content[:e.Range.Start] + e.Replacement + content[e.Range.End:]
	}
	return content
}

func TestExtractLambdaNoCaptures(t *testing.T) {
	src := `def login(user):
    check = lambda u: u.age >= 18
    if check(user):
        return user
    return None
`
	fx := load(t, "auth.py", src)
	sym, el := fx.element(t, "login", "auth.login.lambda_1")

	ex, err := PlanExtractElement(fx.file, fx.res, sym, el, "is_adult")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(ex.Params) != 1 || ex.Params[0] != "u" {
		t.Errorf("params = %v", ex.Params)
	}
	if !strings.Contains(ex.Code, "def is_adult(u):") {
		t.Errorf("code = %q", ex.Code)
	}
	if !strings.Contains(ex.Code, "return u.age >= 18") {
		t.Errorf("code = %q", ex.Code)
	}

	result := apply(t, src, ex.ChangeSet)
	if !strings.Contains(result, "check = is_adult\n") {
		t.Errorf("lambda site should become a bare reference:\n%s", result)
	}
	if strings.Index(result, "def is_adult") > strings.Index(result, "def login") {
		t.Error("new definition should precede the enclosing function")
	}
}

func TestExtractLambdaWithCapture(t *testing.T) {
	src := `def login(user, limit):
    check = lambda u: u.age >= limit
    return check(user)
`
	fx := load(t, "auth.py", src)
	sym, el := fx.element(t, "login", "auth.login.lambda_1")

	ex, err := PlanExtractElement(fx.file, fx.res, sym, el, "is_adult")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(ex.Params) != 2 || ex.Params[0] != "u" || ex.Params[1] != "limit" {
		t.Errorf("params = %v", ex.Params)
	}
	result := apply(t, src, ex.ChangeSet)
	if !strings.Contains(result, "check = lambda u: is_adult(u, limit)") {
		t.Errorf("capture should produce a closing lambda:\n%s", result)
	}
}

func TestExtractExpression(t *testing.T) {
	src := `def run(data):
    return validate(data) and process(data)

def validate(d):
    return True

def process(d):
    return d
`
	fx := load(t, "flow.py", src)
	sym, el := fx.element(t, "run", "flow.run.expression_1")

	ex, err := PlanExtractElement(fx.file, fx.res, sym, el, "check")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	// validate and process are module level: only data is captured.
	if len(ex.Params) != 1 || ex.Params[0] != "data" {
		t.Errorf("params = %v", ex.Params)
	}
	result := apply(t, src, ex.ChangeSet)
	if !strings.Contains(result, "return check(data)") {
		t.Errorf("call site:\n%s", result)
	}
	if !strings.Contains(result, "def check(data):\n    return validate(data) and process(data)") {
		t.Errorf("new function:\n%s", result)
	}
}

func TestExtractBlockWithEscape(t *testing.T) {
	src := `def handle(items):
    if items:
        total = sum(items)
        count = len(items)
    return total
`
	fx := load(t, "agg.py", src)
	sym, el := fx.element(t, "handle", "agg.handle.block_1")

	ex, err := PlanExtractElement(fx.file, fx.res, sym, el, "tally")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(ex.Params) != 1 || ex.Params[0] != "items" {
		t.Errorf("params = %v", ex.Params)
	}
	// Only total is read after the block; count stays internal.
	if !strings.Contains(ex.Code, "return total") {
		t.Errorf("code = %q", ex.Code)
	}
	if strings.Contains(ex.Code, "return total, count") {
		t.Errorf("count should not escape: %q", ex.Code)
	}
	result := apply(t, src, ex.ChangeSet)
	if !strings.Contains(result, "total = tally(items)") {
		t.Errorf("call site:\n%s", result)
	}
}

func TestExtractBlockWithReturnFails(t *testing.T) {
	src := `def handle(items):
    if items:
        return len(items)
    return 0
`
	fx := load(t, "agg.py", src)
	sym, el := fx.element(t, "handle", "agg.handle.block_1")

	_, err := PlanExtractElement(fx.file, fx.res, sym, el, "tally")
	re, ok := refactorerr.As(err)
	if !ok || re.Kind != refactorerr.KindExtractionShape {
		t.Fatalf("err = %v, want extraction shape error", err)
	}
	if len(re.Suggestions) == 0 {
		t.Error("shape error must carry suggestions")
	}
}

func TestExtractWholeFunction(t *testing.T) {
	src := `def process(data, flag):
    cleaned = data.strip()
    if flag:
        cleaned = cleaned.lower()
    return cleaned
`
	fx := load(t, "text.py", src)
	sym, err := fx.res.Resolve("process")
	if err != nil {
		t.Fatal(err)
	}
	ex, err := PlanExtractFunction(fx.file, fx.res, sym, "normalize")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(ex.Params) != 2 {
		t.Errorf("params = %v", ex.Params)
	}
	result := apply(t, src, ex.ChangeSet)
	if !strings.Contains(result, "def process(data, flag):\n    return normalize(data, flag)") {
		t.Errorf("delegation:\n%s", result)
	}
	if !strings.Contains(result, "def normalize(data, flag):") {
		t.Errorf("new function:\n%s", result)
	}
}

func TestPlanRename(t *testing.T) {
	fx := load(t, "lib.py", "def greet(name):\n    return name\n\ndef main():\n    return greet(\"x\")\n")
	sym, err := fx.res.Resolve("greet")
	if err != nil {
		t.Fatal(err)
	}
	refs := fx.res.References(sym)
	cs, err := PlanRename("welcome", refs)
	if err != nil {
		t.Fatalf("PlanRename: %v", err)
	}
	if len(cs.Edits) != 2 {
		t.Fatalf("edits = %d", len(cs.Edits))
	}
	result := apply(t, "def greet(name):\n    return name\n\ndef main():\n    return greet(\"x\")\n", cs)
	if strings.Contains(result, "greet") {
		t.Errorf("old name survives:\n%s", result)
	}
	if strings.Count(result, "welcome") != 2 {
		t.Errorf("rename count wrong:\n%s", result)
	}
}
