// Package engine coordinates the refactoring operations over one
// project: snapshot lifecycle, symbol resolution, element discovery,
// conflict checking, and transactional application of edits.
//
// Read operations share the project lock; rename and extract hold it
// exclusively from resolution through apply so the plan is computed and
// executed against the same snapshot.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/standardbeagle/refract/internal/anonelem"
	"github.com/standardbeagle/refract/internal/backend"
	"github.com/standardbeagle/refract/internal/backup"
	"github.com/standardbeagle/refract/internal/config"
	"github.com/standardbeagle/refract/internal/refactorerr"
	"github.com/standardbeagle/refract/internal/resolver"
	"github.com/standardbeagle/refract/internal/source"
	"github.com/standardbeagle/refract/internal/types"
)

// Engine drives all operations for one project root.
type Engine struct {
	cfg     *config.Config
	log     *zap.Logger
	reg     *backend.Registry
	backups *backup.Manager

	mu      sync.RWMutex
	snap    *source.Snapshot
	res     *resolver.Resolver
	dirty   bool
	watcher *watcher

	ledgerMu sync.Mutex
	ledger   map[string]uint64 // fn qualified name -> file hash at last show
}

// New builds an engine with the Python and Go backends registered.
func New(cfg *config.Config, log *zap.Logger) (*Engine, error) {
	reg := backend.NewRegistry()
	py, err := backend.NewPython()
	if err != nil {
		return nil, err
	}
	reg.Register(py)
	gb, err := backend.NewGolang()
	if err != nil {
		return nil, err
	}
	reg.Register(gb)

	e := &Engine{
		cfg:     cfg,
		log:     log,
		reg:     reg,
		backups: backup.NewManager(cfg.BackupDir(), log),
		ledger:  make(map[string]uint64),
	}
	if cfg.Scan.WatchMode {
		w, err := newWatcher(cfg, e.invalidate, log)
		if err != nil {
			log.Warn("file watcher unavailable", zap.Error(err))
		} else {
			e.watcher = w
		}
	}
	return e, nil
}

// Close stops the watcher and releases the snapshot.
func (e *Engine) Close() {
	if e.watcher != nil {
		e.watcher.stop()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap != nil {
		e.snap.Close()
		e.snap = nil
	}
}

// invalidate marks the cached snapshot stale. Called by the watcher.
func (e *Engine) invalidate() {
	e.mu.Lock()
	e.dirty = true
	e.mu.Unlock()
}

// refresh reloads the snapshot and resolver when stale. Caller must hold
// the write lock.
func (e *Engine) refresh(ctx context.Context) error {
	if e.snap != nil && !e.dirty {
		return nil
	}
	if e.snap != nil {
		e.snap.Close()
	}
	snap, err := source.Load(ctx, e.cfg, e.reg, e.log)
	if err != nil {
		e.snap = nil
		e.res = nil
		return err
	}
	e.snap = snap
	e.res = resolver.New(snap, e.log)
	e.dirty = false
	return nil
}

// ready refreshes under the write lock then downgrades to a read lock.
// Returned release must always be called.
func (e *Engine) ready(ctx context.Context) (func(), error) {
	e.mu.Lock()
	if err := e.refresh(ctx); err != nil {
		e.mu.Unlock()
		return func() {}, err
	}
	e.mu.Unlock()
	e.mu.RLock()
	return e.mu.RUnlock, nil
}

func (e *Engine) rel(path string) string {
	if r, err := filepath.Rel(e.cfg.Project.Root, path); err == nil {
		return filepath.ToSlash(r)
	}
	return path
}

func (e *Engine) symbolInfo(sym *types.Symbol) *types.SymbolInfo {
	return &types.SymbolInfo{
		Name:               sym.Name,
		QualifiedName:      sym.QualifiedName,
		Kind:               sym.Kind,
		DefinitionLocation: fmt.Sprintf("%s:%d", e.rel(sym.File), sym.Line),
		Scope:              sym.Scope(),
		Docstring:          sym.Docstring,
	}
}

// Warnings returns scan warnings from the current snapshot.
func (e *Engine) Warnings(ctx context.Context) []string {
	release, err := e.ready(ctx)
	defer release()
	if err != nil {
		return []string{err.Error()}
	}
	return append([]string(nil), e.snap.Warnings...)
}

// Capabilities lists the supported operations per registered language.
func (e *Engine) Capabilities() map[string][]types.Capability {
	out := make(map[string][]types.Capability)
	for _, lang := range e.reg.Languages() {
		if b, ok := e.reg.ForLanguage(lang); ok {
			out[lang] = b.Capabilities()
		}
	}
	return out
}

// AnalyzeSymbol resolves a symbol and reports its definition and every
// reference location.
func (e *Engine) AnalyzeSymbol(ctx context.Context, name string) *types.AnalysisResult {
	release, err := e.ready(ctx)
	defer release()
	if err != nil {
		return &types.AnalysisResult{Success: false, ErrorKind: string(refactorerr.KindParse), Message: err.Error(), Suggestions: []string{"check that the project root is readable"}}
	}

	sym, err := e.res.Resolve(name)
	if err != nil {
		re, _ := refactorerr.As(err)
		return &types.AnalysisResult{
			Success:     false,
			ErrorKind:   string(re.Kind),
			Message:     re.Message,
			Suggestions: suggestionsOf(re),
		}
	}
	refs := e.res.References(sym)
	locations := make([]string, len(refs))
	for i, ref := range refs {
		locations[i] = fmt.Sprintf("%s:%d", e.rel(ref.File), ref.Line)
	}
	return &types.AnalysisResult{
		Success:        true,
		Symbol:         e.symbolInfo(sym),
		References:     locations,
		ReferenceCount: len(refs),
	}
}

// FindSymbols searches symbols by pattern, case-insensitively, capped at
// the configured result limit.
func (e *Engine) FindSymbols(ctx context.Context, pattern string) *types.FindResult {
	release, err := e.ready(ctx)
	defer release()
	if err != nil {
		return &types.FindResult{Success: false, Pattern: pattern, ErrorKind: string(refactorerr.KindParse), Message: err.Error(), Suggestions: []string{"check that the project root is readable"}}
	}
	if pattern == "" {
		re := refactorerr.NewValidation("pattern", "must not be empty")
		return &types.FindResult{Success: false, ErrorKind: string(re.Kind), Message: re.Message, Suggestions: re.Suggestions}
	}

	matches, total, partial := e.res.Find(ctx, pattern, e.cfg.Find.MaxResults)
	infos := make([]types.SymbolInfo, len(matches))
	for i := range matches {
		infos[i] = *e.symbolInfo(&matches[i])
	}
	res := &types.FindResult{
		Success:    true,
		Pattern:    pattern,
		Matches:    infos,
		TotalCount: total,
		Partial:    partial || e.snap.Partial,
	}
	if total == 0 {
		res.Suggestions = e.res.Suggest(pattern)
		if len(res.Suggestions) == 0 {
			res.Suggestions = []string{"try a broader pattern such as *" + pattern + "*"}
		}
	}
	return res
}

// ShowFunction lists the anonymous elements of a function and records
// their discovery fingerprint for later staleness checks.
func (e *Engine) ShowFunction(ctx context.Context, fnName string) *types.ShowResult {
	release, err := e.ready(ctx)
	defer release()
	if err != nil {
		return &types.ShowResult{Success: false, ErrorKind: string(refactorerr.KindParse), Message: err.Error(), Suggestions: []string{"check that the project root is readable"}}
	}

	sym, f, re := e.lookupFunction(fnName)
	if re != nil {
		return &types.ShowResult{Success: false, FunctionName: fnName, ErrorKind: string(re.Kind), Message: re.Message, Suggestions: suggestionsOf(re)}
	}
	elements, err := anonelem.Discover(f, sym)
	if err != nil {
		return &types.ShowResult{Success: false, FunctionName: fnName, ErrorKind: string(refactorerr.KindValidation), Message: err.Error(), Suggestions: []string{"re-run analyze_symbol to confirm the function exists"}}
	}

	e.ledgerMu.Lock()
	e.ledger[sym.QualifiedName] = f.Hash
	e.ledgerMu.Unlock()

	infos := make([]types.ElementInfo, len(elements))
	for i, el := range elements {
		infos[i] = types.ElementInfo{
			ID:       el.ID,
			Kind:     el.Kind,
			Code:     el.Code,
			Location: fmt.Sprintf("%s:%d", e.rel(el.File), el.Line),
		}
	}
	return &types.ShowResult{
		Success:      true,
		FunctionName: sym.QualifiedName,
		Elements:     infos,
	}
}

// lookupFunction resolves a name to a function or method symbol and its
// file. Caller holds at least a read lock.
func (e *Engine) lookupFunction(name string) (*types.Symbol, *source.File, *refactorerr.Error) {
	sym, err := e.res.Resolve(name)
	if err != nil {
		re, _ := refactorerr.As(err)
		return nil, nil, re
	}
	if sym.Kind != types.KindFunction && sym.Kind != types.KindMethod {
		return nil, nil, refactorerr.NewValidation("function_name",
			fmt.Sprintf("%s is a %s, not a function", sym.QualifiedName, sym.Kind))
	}
	f, ok := e.snap.Files[sym.File]
	if !ok {
		return nil, nil, refactorerr.NewSymbolNotFound(name, nil)
	}
	if !types.HasCapability(f.Backend.Capabilities(), types.CapShowFunction) {
		return nil, nil, refactorerr.NewUnsupported(f.Backend.Language(), string(types.CapShowFunction))
	}
	return sym, f, nil
}

// ListBackups returns stored backups, newest first.
func (e *Engine) ListBackups() ([]types.BackupInfo, error) {
	return e.backups.List()
}

// RestoreBackup restores all files of a backup and invalidates the
// snapshot.
func (e *Engine) RestoreBackup(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.backups.Restore(id); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// CleanupBackups removes aged backups per configuration.
func (e *Engine) CleanupBackups() (int, error) {
	maxAge := time.Duration(e.cfg.Backups.MaxAgeDays) * 24 * time.Hour
	return e.backups.Cleanup(maxAge, e.cfg.Backups.Keep)
}

// suggestionsOf prefers concrete candidate names over generic advice.
func suggestionsOf(re *refactorerr.Error) []string {
	if re.Kind == refactorerr.KindAmbiguousSymbol && len(re.Candidates) > 0 {
		return re.Candidates
	}
	return re.Suggestions
}
