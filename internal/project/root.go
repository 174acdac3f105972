// Package project locates the project root and identifies the codebase
// language from its build files.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// Markers that identify a project root, in priority order.
var rootMarkers = []string{
	".refract.kdl",
	"pyproject.toml",
	"setup.py",
	"setup.cfg",
	"go.mod",
	".git",
}

// FindRoot walks upward from start looking for a root marker. When no
// marker is found it returns the absolute form of start.
func FindRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		abs = filepath.Dir(abs)
	}

	dir := abs
	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

// pyprojectFile is the subset of pyproject.toml we read.
type pyprojectFile struct {
	Project struct {
		Name string `toml:"name"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name string `toml:"name"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// Name returns the project name declared in pyproject.toml, falling back
// to the root directory's base name.
func Name(root string) string {
	content, err := os.ReadFile(filepath.Join(root, "pyproject.toml"))
	if err == nil {
		var pf pyprojectFile
		if err := toml.Unmarshal(content, &pf); err == nil {
			if pf.Project.Name != "" {
				return pf.Project.Name
			}
			if pf.Tool.Poetry.Name != "" {
				return pf.Tool.Poetry.Name
			}
		}
	}
	return filepath.Base(root)
}

// DetectLanguage guesses the dominant language from build files, then
// from source file counts. Returns "" when nothing recognizable exists.
func DetectLanguage(root string) string {
	for _, f := range []string{"pyproject.toml", "setup.py", "setup.cfg"} {
		if _, err := os.Stat(filepath.Join(root, f)); err == nil {
			return "python"
		}
	}
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
		return "go"
	}

	counts := map[string]int{}
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name[0] == '.' || name == "node_modules" || name == "vendor" || name == "__pycache__") {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".py":
			counts["python"]++
		case ".go":
			counts["go"]++
		}
		return nil
	})
	best, bestN := "", 0
	for lang, n := range counts {
		if n > bestN {
			best, bestN = lang, n
		}
	}
	return best
}
