// Package planner turns resolved refactoring intents into validated
// change sets. Planning is pure: no file is touched here.
package planner

import (
	"github.com/standardbeagle/refract/internal/types"
)

// PlanRename builds one edit per reference, replacing the identifier
// token with newName. The returned change set is validated for ordering
// and overlap before use.
func PlanRename(newName string, refs []types.Reference) (*types.ChangeSet, error) {
	cs := &types.ChangeSet{}
	for _, ref := range refs {
		cs.Add(types.Edit{
			File:        ref.File,
			Range:       ref.Range,
			Replacement: newName,
		})
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return cs, nil
}
