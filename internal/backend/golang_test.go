package backend

import (
	"testing"

	"github.com/standardbeagle/refract/internal/types"
)

const goSource = `package store

import (
	"fmt"
	reds "github.com/redis/go-redis/v9"
)

const MaxRetries = 3

var defaultName = "store"

type Cache struct {
	name string
}

func (c *Cache) Get(key string) string {
	return fmt.Sprintf("%s:%s", c.name, key)
}

func NewCache() *Cache {
	_ = reds.Nil
	return &Cache{name: defaultName}
}
`

func parseGo(t *testing.T, source string) (*Golang, *Tree) {
	t.Helper()
	gb, err := NewGolang()
	if err != nil {
		t.Fatalf("NewGolang: %v", err)
	}
	tree, err := gb.Parse("store.go", []byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	t.Cleanup(tree.Close)
	return gb, tree
}

func TestGoDefinitions(t *testing.T) {
	gb, tree := parseGo(t, goSource)
	defs := gb.Definitions(tree)

	byName := map[string]Definition{}
	for _, d := range defs {
		byName[d.Name] = d
	}

	if d, ok := byName["NewCache"]; !ok || d.Kind != types.KindFunction {
		t.Errorf("NewCache = %+v", d)
	}
	if d, ok := byName["Get"]; !ok || d.Kind != types.KindMethod {
		t.Errorf("Get = %+v", d)
	} else if len(d.Scope) != 1 || d.Scope[0] != "Cache" {
		t.Errorf("Get scope = %v, want receiver type", d.Scope)
	}
	if d, ok := byName["Cache"]; !ok || d.Kind != types.KindType {
		t.Errorf("Cache = %+v", d)
	}
	if d, ok := byName["MaxRetries"]; !ok || d.Kind != types.KindConstant {
		t.Errorf("MaxRetries = %+v", d)
	}
	if d, ok := byName["defaultName"]; !ok || d.Kind != types.KindVariable {
		t.Errorf("defaultName = %+v", d)
	}
}

func TestGoIdentifiers(t *testing.T) {
	gb, tree := parseGo(t, goSource)
	idents := gb.Identifiers(tree)

	var sprintfAttr, defaultNameUses int
	for _, id := range idents {
		if id.Name == "Sprintf" && id.Attr {
			sprintfAttr++
			if id.Obj != "fmt" {
				t.Errorf("Sprintf Obj = %q", id.Obj)
			}
		}
		if id.Name == "defaultName" && !id.Bind {
			defaultNameUses++
		}
	}
	if sprintfAttr != 1 {
		t.Errorf("Sprintf selector occurrences = %d", sprintfAttr)
	}
	if defaultNameUses != 1 {
		t.Errorf("defaultName use occurrences = %d", defaultNameUses)
	}
}

func TestGoImports(t *testing.T) {
	gb, tree := parseGo(t, goSource)
	imports := gb.Imports(tree)
	if len(imports) != 2 {
		t.Fatalf("imports = %+v", imports)
	}
	if imports[0].Module != "fmt" {
		t.Errorf("first import = %q", imports[0].Module)
	}
	if imports[1].Alias != "reds" {
		t.Errorf("alias = %q", imports[1].Alias)
	}
}

func TestGoCapabilitiesExcludeExtraction(t *testing.T) {
	gb, err := NewGolang()
	if err != nil {
		t.Fatal(err)
	}
	if types.HasCapability(gb.Capabilities(), types.CapExtractElement) {
		t.Error("go backend must not advertise extraction")
	}
	if !types.HasCapability(gb.Capabilities(), types.CapRenameSymbol) {
		t.Error("go backend should support rename")
	}
}

func TestGoReservedWords(t *testing.T) {
	gb, err := NewGolang()
	if err != nil {
		t.Fatal(err)
	}
	if gb.ValidIdentifier("func") {
		t.Error("func should be rejected")
	}
	if !gb.ValidIdentifier("newName") {
		t.Error("newName should be valid")
	}
}

func TestRegistry(t *testing.T) {
	py, err := NewPython()
	if err != nil {
		t.Fatal(err)
	}
	gb, err := NewGolang()
	if err != nil {
		t.Fatal(err)
	}
	r := NewRegistry()
	r.Register(py)
	r.Register(gb)

	if b, ok := r.ForLanguage("python"); !ok || b.Language() != "python" {
		t.Error("python lookup failed")
	}
	if b, ok := r.ForExtension(".go"); !ok || b.Language() != "go" {
		t.Error(".go lookup failed")
	}
	if _, ok := r.ForLanguage("rust"); ok {
		t.Error("unexpected rust backend")
	}
	if got := len(r.Languages()); got != 2 {
		t.Errorf("languages = %d", got)
	}
}
