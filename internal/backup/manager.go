// Package backup stores pre-edit file snapshots and applies change sets
// transactionally: every file is backed up before any file is written,
// and a failed apply restores all files from the backup.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/standardbeagle/refract/internal/refactorerr"
	"github.com/standardbeagle/refract/internal/types"
)

// manifest is the on-disk record of one backup.
type manifest struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Files     map[string]string `json:"files"` // original absolute path -> stored name
}

// Manager owns one backup directory.
type Manager struct {
	dir string
	log *zap.Logger
}

// NewManager returns a manager rooted at dir, creating it on first use.
func NewManager(dir string, log *zap.Logger) *Manager {
	return &Manager{dir: dir, log: log}
}

// Create snapshots the given files under a fresh backup id.
func (m *Manager) Create(files []string) (*types.Backup, error) {
	id := uuid.New().String()
	base := filepath.Join(m.dir, id)
	storeDir := filepath.Join(base, "files")
	if err := os.MkdirAll(storeDir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup dir: %w", err)
	}

	man := manifest{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Files:     make(map[string]string, len(files)),
	}
	for i, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			os.RemoveAll(base)
			return nil, fmt.Errorf("reading %s for backup: %w", path, err)
		}
		stored := fmt.Sprintf("%d%s", i, filepath.Ext(path))
		if err := os.WriteFile(filepath.Join(storeDir, stored), content, 0644); err != nil {
			os.RemoveAll(base)
			return nil, fmt.Errorf("writing backup copy: %w", err)
		}
		man.Files[path] = stored
	}
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		os.RemoveAll(base)
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(base, "manifest.json"), data, 0644); err != nil {
		os.RemoveAll(base)
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	m.log.Info("backup created", zap.String("id", id), zap.Int("files", len(files)))
	sorted := append([]string{}, files...)
	sort.Strings(sorted)
	return &types.Backup{ID: id, Files: sorted, CreatedAt: man.CreatedAt}, nil
}

func (m *Manager) readManifest(id string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, id, "manifest.json"))
	if err != nil {
		return nil, refactorerr.NewBackupNotFound(id)
	}
	var man manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("corrupt manifest for %s: %w", id, err)
	}
	return &man, nil
}

// Restore writes every file in the backup back to its original path.
func (m *Manager) Restore(id string) error {
	man, err := m.readManifest(id)
	if err != nil {
		return err
	}
	storeDir := filepath.Join(m.dir, id, "files")
	for path, stored := range man.Files {
		content, err := os.ReadFile(filepath.Join(storeDir, stored))
		if err != nil {
			return fmt.Errorf("reading backup copy for %s: %w", path, err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("restoring %s: %w", path, err)
		}
	}
	m.log.Info("backup restored", zap.String("id", id), zap.Int("files", len(man.Files)))
	return nil
}

// List returns known backups, newest first.
func (m *Manager) List() ([]types.BackupInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	type entry struct {
		info types.BackupInfo
		at   time.Time
	}
	var found []entry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		man, err := m.readManifest(e.Name())
		if err != nil {
			continue
		}
		files := make([]string, 0, len(man.Files))
		for path := range man.Files {
			files = append(files, path)
		}
		sort.Strings(files)
		found = append(found, entry{
			info: types.BackupInfo{
				ID:        man.ID,
				CreatedAt: man.CreatedAt.Format(time.RFC3339Nano),
				Files:     files,
			},
			at: man.CreatedAt,
		})
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].at.After(found[j].at)
	})
	infos := make([]types.BackupInfo, len(found))
	for i, e := range found {
		infos[i] = e.info
	}
	return infos, nil
}

// Cleanup removes backups older than maxAge, always retaining the keep
// most recent ones. Returns the number removed.
func (m *Manager) Cleanup(maxAge time.Duration, keep int) (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for i, info := range infos {
		if i < keep {
			continue
		}
		at, perr := time.Parse(time.RFC3339Nano, info.CreatedAt)
		if perr != nil || at.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.dir, info.ID)); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		m.log.Info("backups cleaned", zap.Int("removed", removed))
	}
	return removed, nil
}

// Apply backs up every file the change set touches, then writes the
// edits. Edits are applied per file in descending start order so earlier
// offsets stay valid. Any write failure triggers a restore of all files.
func (m *Manager) Apply(op string, cs *types.ChangeSet) (*types.Backup, error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	files := cs.Files()
	bk, err := m.Create(files)
	if err != nil {
		return nil, err
	}

	byFile := make(map[string][]types.Edit)
	for _, e := range cs.Edits {
		byFile[e.File] = append(byFile[e.File], e)
	}
	for _, path := range files {
		edits := byFile[path]
		sort.Slice(edits, func(i, j int) bool {
			return edits[i].Range.Start > edits[j].Range.Start
		})
		content, err := os.ReadFile(path)
		if err != nil {
			return bk, m.rollback(op, bk, err)
		}
		for _, e := range edits {
			if e.Range.Start < 0 || e.Range.End > len(content) {
				return bk, m.rollback(op, bk, fmt.Errorf("edit range %d..%d outside %s", e.Range.Start, e.Range.End, path))
			}
			content = append(content[:e.Range.Start], append([]byte(e.Replacement), content[e.Range.End:]...)...)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return bk, m.rollback(op, bk, err)
		}
	}
	m.log.Info("change set applied",
		zap.String("op", op),
		zap.String("backup", bk.ID),
		zap.Int("files", len(files)))
	return bk, nil
}

func (m *Manager) rollback(op string, bk *types.Backup, cause error) error {
	restoreErr := m.Restore(bk.ID)
	if restoreErr != nil {
		m.log.Error("rollback failed",
			zap.String("backup", bk.ID),
			zap.Error(restoreErr))
		return refactorerr.NewApply(op, cause, false)
	}
	m.log.Warn("apply failed, rolled back",
		zap.String("backup", bk.ID),
		zap.Error(cause))
	return refactorerr.NewApply(op, cause, true)
}
