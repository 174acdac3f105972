// Package conflict checks whether a proposed new name can be introduced
// without capturing or shadowing existing bindings. The checks are
// conservative: any plausible collision blocks the operation, and no
// operation proceeds with a non-empty conflict list.
package conflict

import (
	"fmt"
	"path/filepath"

	"github.com/standardbeagle/refract/internal/backend"
	"github.com/standardbeagle/refract/internal/resolver"
	"github.com/standardbeagle/refract/internal/types"
)

// CheckRename returns human-readable conflict descriptions for renaming
// sym to newName across the given references. Empty means safe.
func CheckRename(r *resolver.Resolver, b backend.Backend, sym *types.Symbol, newName string, refs []types.Reference) []string {
	var conflicts []string

	if b.IsReserved(newName) {
		conflicts = append(conflicts, fmt.Sprintf("%q is a reserved word", newName))
		return conflicts
	}
	if !b.ValidIdentifier(newName) {
		conflicts = append(conflicts, fmt.Sprintf("%q is not a valid identifier", newName))
		return conflicts
	}

	seen := map[string]bool{}
	for _, ref := range refs {
		if seen[ref.File] {
			continue
		}
		seen[ref.File] = true
		if r.BoundAnywhereIn(ref.File, newName) {
			conflicts = append(conflicts,
				fmt.Sprintf("%q is already bound in %s", newName, filepath.Base(ref.File)))
		}
	}
	return conflicts
}

// CheckExtract returns conflicts for introducing a new module-level
// function named newName in file.
func CheckExtract(r *resolver.Resolver, b backend.Backend, file string, newName string) []string {
	var conflicts []string
	if b.IsReserved(newName) {
		return append(conflicts, fmt.Sprintf("%q is a reserved word", newName))
	}
	if !b.ValidIdentifier(newName) {
		return append(conflicts, fmt.Sprintf("%q is not a valid identifier", newName))
	}
	if r.BoundAnywhereIn(file, newName) {
		conflicts = append(conflicts,
			fmt.Sprintf("%q is already bound in %s", newName, filepath.Base(file)))
	}
	return conflicts
}
