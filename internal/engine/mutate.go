package engine

import (
	"context"
	"fmt"

	"github.com/standardbeagle/refract/internal/anonelem"
	"github.com/standardbeagle/refract/internal/conflict"
	"github.com/standardbeagle/refract/internal/planner"
	"github.com/standardbeagle/refract/internal/refactorerr"
	"github.com/standardbeagle/refract/internal/types"
)

// RenameSymbol renames a symbol across the project. The write lock is
// held from resolution through apply; on conflict no file is touched and
// no backup is created.
func (e *Engine) RenameSymbol(ctx context.Context, name, newName string) *types.RenameResult {
	fail := func(re *refactorerr.Error) *types.RenameResult {
		return &types.RenameResult{
			Success:     false,
			OldName:     name,
			NewName:     newName,
			ErrorKind:   string(re.Kind),
			Message:     re.Message,
			Suggestions: suggestionsOf(re),
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.refresh(ctx); err != nil {
		return fail(refactorerr.NewParse(e.cfg.Project.Root, 0, 0, err))
	}

	if anonelem.IsElementID(name) {
		return fail(refactorerr.NewValidation("symbol_name",
			"anonymous elements cannot be renamed; extract them into a named function first"))
	}

	sym, err := e.res.Resolve(name)
	if err != nil {
		re, _ := refactorerr.As(err)
		return fail(re)
	}
	f, ok := e.snap.Files[sym.File]
	if !ok {
		return fail(refactorerr.NewSymbolNotFound(name, nil))
	}
	if !types.HasCapability(f.Backend.Capabilities(), types.CapRenameSymbol) {
		return fail(refactorerr.NewUnsupported(f.Backend.Language(), string(types.CapRenameSymbol)))
	}

	refs := e.res.References(sym)
	if conflicts := conflict.CheckRename(e.res, f.Backend, sym, newName, refs); len(conflicts) > 0 {
		re := refactorerr.NewNamingConflict(newName, conflicts)
		res := fail(re)
		res.QualifiedName = sym.QualifiedName
		res.Conflicts = conflicts
		return res
	}

	cs, err := planner.PlanRename(newName, refs)
	if err != nil {
		return fail(refactorerr.NewValidation("plan", err.Error()))
	}
	bk, err := e.backups.Apply("rename", cs)
	e.dirty = true
	if err != nil {
		re, ok := refactorerr.As(err)
		if !ok {
			re = refactorerr.NewApply("rename", err, false)
		}
		res := fail(re)
		if bk != nil {
			res.BackupID = bk.ID
		}
		return res
	}

	modified := make([]string, 0, len(cs.Files()))
	for _, p := range cs.Files() {
		modified = append(modified, e.rel(p))
	}
	return &types.RenameResult{
		Success:           true,
		OldName:           sym.Name,
		NewName:           newName,
		QualifiedName:     sym.QualifiedName,
		FilesModified:     modified,
		ReferencesUpdated: len(refs),
		BackupID:          bk.ID,
	}
}

// ExtractElement extracts an anonymous element (by synthetic id) or a
// whole named function into a new module-level function.
func (e *Engine) ExtractElement(ctx context.Context, src, newName string) *types.ExtractResult {
	fail := func(re *refactorerr.Error) *types.ExtractResult {
		return &types.ExtractResult{
			Success:     false,
			Source:      src,
			NewName:     newName,
			ErrorKind:   string(re.Kind),
			Message:     re.Message,
			Suggestions: suggestionsOf(re),
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.refresh(ctx); err != nil {
		return fail(refactorerr.NewParse(e.cfg.Project.Root, 0, 0, err))
	}

	var ex *planner.Extraction
	if anonelem.IsElementID(src) {
		scopeName, _, _, _ := anonelem.ParseID(src)
		sym, f, re := e.lookupFunction(scopeName)
		if re != nil {
			return fail(re)
		}
		if !types.HasCapability(f.Backend.Capabilities(), types.CapExtractElement) {
			return fail(refactorerr.NewUnsupported(f.Backend.Language(), string(types.CapExtractElement)))
		}

		// Ids handed out by a previous show are only honored while the
		// file is unchanged.
		e.ledgerMu.Lock()
		recorded, shown := e.ledger[sym.QualifiedName]
		e.ledgerMu.Unlock()
		if shown && recorded != f.Hash {
			return fail(refactorerr.NewIdentifierStale(src))
		}

		el, err := anonelem.Locate(f, sym, src)
		if err != nil {
			return fail(refactorerr.NewValidation("source", err.Error()))
		}
		if el == nil {
			return fail(refactorerr.NewSymbolNotFound(src,
				[]string{fmt.Sprintf("run show_function %s to list current element ids", sym.QualifiedName)}))
		}
		if conflicts := conflict.CheckExtract(e.res, f.Backend, f.Path, newName); len(conflicts) > 0 {
			return fail(refactorerr.NewNamingConflict(newName, conflicts))
		}
		ex, err = planner.PlanExtractElement(f, e.res, sym, el, newName)
		if err != nil {
			re, ok := refactorerr.As(err)
			if !ok {
				re = refactorerr.NewValidation("source", err.Error())
			}
			return fail(re)
		}
	} else {
		sym, f, re := e.lookupFunction(src)
		if re != nil {
			return fail(re)
		}
		if !types.HasCapability(f.Backend.Capabilities(), types.CapExtractElement) {
			return fail(refactorerr.NewUnsupported(f.Backend.Language(), string(types.CapExtractElement)))
		}
		if conflicts := conflict.CheckExtract(e.res, f.Backend, f.Path, newName); len(conflicts) > 0 {
			return fail(refactorerr.NewNamingConflict(newName, conflicts))
		}
		var err error
		ex, err = planner.PlanExtractFunction(f, e.res, sym, newName)
		if err != nil {
			re, ok := refactorerr.As(err)
			if !ok {
				re = refactorerr.NewValidation("source", err.Error())
			}
			return fail(re)
		}
	}

	bk, err := e.backups.Apply("extract", ex.ChangeSet)
	e.dirty = true
	if err != nil {
		re, ok := refactorerr.As(err)
		if !ok {
			re = refactorerr.NewApply("extract", err, false)
		}
		res := fail(re)
		if bk != nil {
			res.BackupID = bk.ID
		}
		return res
	}

	modified := make([]string, 0, len(ex.ChangeSet.Files()))
	for _, p := range ex.ChangeSet.Files() {
		modified = append(modified, e.rel(p))
	}
	return &types.ExtractResult{
		Success:       true,
		Source:        src,
		NewName:       newName,
		ExtractedCode: ex.Code,
		Parameters:    ex.Params,
		FilesModified: modified,
		BackupID:      bk.ID,
	}
}
