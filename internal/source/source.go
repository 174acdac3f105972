// Package source loads a project tree into an in-memory snapshot of
// parsed files. Loading is bounded and concurrent; files that fail to
// parse are excluded from the snapshot with a recorded warning rather
// than failing the whole load.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/refract/internal/backend"
	"github.com/standardbeagle/refract/internal/config"
	"github.com/standardbeagle/refract/internal/types"
)

// File is one parsed source file.
type File struct {
	Path    string // absolute
	Rel     string // slash-separated, relative to the project root
	Module  string // dotted module name derived from Rel
	Content []byte
	Tree    *backend.Tree
	Hash    uint64
	Backend backend.Backend
}

// Text returns the source text covered by n.
func (f *File) Text(n *tree_sitter.Node) string {
	return f.Tree.Text(n)
}

// NodeAt returns the smallest named node whose span covers r exactly or
// encloses it, or nil when r is outside the tree.
func (f *File) NodeAt(r types.ByteRange) *tree_sitter.Node {
	var best *tree_sitter.Node
	backend.Walk(f.Tree.Root(), func(n *tree_sitter.Node) bool {
		start, end := int(n.StartByte()), int(n.EndByte())
		if start > r.Start || end < r.End {
			return start <= r.Start && end >= r.Start
		}
		if n.IsNamed() {
			best = n
		}
		return true
	})
	return best
}

// Snapshot is a consistent view of the project's parsed files. Partial
// marks a scan truncated by its deadline or file-count bound.
type Snapshot struct {
	Root     string
	Files    map[string]*File // keyed by absolute path
	Warnings []string
	Partial  bool
}

// ByModule returns the file whose dotted module name is mod.
func (s *Snapshot) ByModule(mod string) *File {
	for _, f := range s.Files {
		if f.Module == mod {
			return f
		}
	}
	return nil
}

// SortedPaths returns the snapshot's file paths in stable order.
func (s *Snapshot) SortedPaths() []string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Close releases all parse trees.
func (s *Snapshot) Close() {
	for _, f := range s.Files {
		if f.Tree != nil {
			f.Tree.Close()
		}
	}
}

// ModuleName derives the dotted module name for a relative path, such as
// src/acme/auth.py becoming src.acme.auth. Package __init__ files take
// the package's name.
func ModuleName(rel string) string {
	rel = filepath.ToSlash(rel)
	ext := filepath.Ext(rel)
	rel = strings.TrimSuffix(rel, ext)
	mod := strings.ReplaceAll(rel, "/", ".")
	mod = strings.TrimSuffix(mod, ".__init__")
	return mod
}

// Load scans root for source files handled by the registry and parses
// them concurrently under the configured bounds.
func Load(ctx context.Context, cfg *config.Config, reg *backend.Registry, log *zap.Logger) (*Snapshot, error) {
	root := cfg.Project.Root
	paths, warnings, truncated, err := collectPaths(root, cfg, reg)
	if err != nil {
		return nil, err
	}
	if cfg.Scan.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Scan.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	snap := &Snapshot{
		Root:     root,
		Files:    make(map[string]*File, len(paths)),
		Warnings: warnings,
		Partial:  truncated,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := cfg.Performance.MaxGoroutines
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, _ := reg.ForExtension(filepath.Ext(path))
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			tree, err := b.Parse(path, content)
			if err != nil {
				mu.Lock()
				snap.Warnings = append(snap.Warnings, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
				return nil
			}
			if tree.Root().HasError() {
				line, col := firstErrorPosition(tree.Root())
				tree.Close()
				mu.Lock()
				snap.Warnings = append(snap.Warnings,
					fmt.Sprintf("%s: syntax error at %d:%d, file excluded", path, line, col))
				mu.Unlock()
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				tree.Close()
				return err
			}
			f := &File{
				Path:    path,
				Rel:     filepath.ToSlash(rel),
				Module:  ModuleName(rel),
				Content: tree.Content,
				Tree:    tree,
				Hash:    xxhash.Sum64(content),
				Backend: b,
			}
			mu.Lock()
			snap.Files[path] = f
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			snap.Close()
			return nil, err
		}
		// Deadline expiry truncates the scan instead of failing it.
		snap.Partial = true
		snap.Warnings = append(snap.Warnings, "scan deadline exceeded, snapshot is partial")
	}

	log.Debug("snapshot loaded",
		zap.String("root", root),
		zap.Int("files", len(snap.Files)),
		zap.Int("warnings", len(snap.Warnings)))
	return snap, nil
}

// Reload re-parses a single file in place, returning the fresh File.
func (s *Snapshot) Reload(path string, reg *backend.Registry) (*File, error) {
	b, ok := reg.ForExtension(filepath.Ext(path))
	if !ok {
		return nil, fmt.Errorf("no backend for %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tree, err := b.Parse(path, content)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(s.Root, path)
	if err != nil {
		tree.Close()
		return nil, err
	}
	if old, ok := s.Files[path]; ok && old.Tree != nil {
		old.Tree.Close()
	}
	f := &File{
		Path:    path,
		Rel:     filepath.ToSlash(rel),
		Module:  ModuleName(rel),
		Content: tree.Content,
		Tree:    tree,
		Hash:    xxhash.Sum64(content),
		Backend: b,
	}
	s.Files[path] = f
	return f, nil
}

func collectPaths(root string, cfg *config.Config, reg *backend.Registry) ([]string, []string, bool, error) {
	var paths []string
	var warnings []string
	var truncated bool
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if path == root {
				return nil
			}
			if excluded(rel+"/", cfg.Exclude) || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := reg.ForExtension(filepath.Ext(path)); !ok {
			return nil
		}
		if excluded(rel, cfg.Exclude) {
			return nil
		}
		info, ierr := d.Info()
		if ierr == nil && cfg.Scan.MaxFileSize > 0 && info.Size() > cfg.Scan.MaxFileSize {
			warnings = append(warnings, fmt.Sprintf("%s: exceeds size limit, skipped", path))
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	if cfg.Scan.MaxFileCount > 0 && len(paths) > cfg.Scan.MaxFileCount {
		warnings = append(warnings,
			fmt.Sprintf("project has %d files, truncated to %d", len(paths), cfg.Scan.MaxFileCount))
		sort.Strings(paths)
		paths = paths[:cfg.Scan.MaxFileCount]
		truncated = true
	}
	return paths, warnings, truncated, nil
}

func excluded(rel string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
		// Directory patterns like **/venv/** should also match the
		// directory itself during the walk.
		if strings.HasSuffix(pat, "/**") {
			if ok, _ := doublestar.Match(strings.TrimSuffix(pat, "/**"), strings.TrimSuffix(rel, "/")); ok {
				return true
			}
		}
	}
	return false
}

func firstErrorPosition(root *tree_sitter.Node) (int, int) {
	line, col := 1, 1
	backend.Walk(root, func(n *tree_sitter.Node) bool {
		if n.IsError() || n.IsMissing() {
			pos := n.StartPosition()
			line, col = int(pos.Row)+1, int(pos.Column)+1
			return false
		}
		return n.HasError()
	})
	return line, col
}
