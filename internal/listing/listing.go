// Package listing enumerates certificate folders into an immutable snapshot
// shared by every worker of an audit run.
package listing

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coi-audit/internal/normalize"
)

// ErrInaccessible is returned when the requested directory cannot be read at
// all. It is distinct from an empty directory.
var ErrInaccessible = eris.New("listing: directory inaccessible")

// Entry is one candidate certificate file.
type Entry struct {
	Filename string         `json:"filename"`
	Path     string         `json:"path"`
	Folder   string         `json:"folder"`
	Stem     normalize.Stem `json:"stem"`
}

// Snapshot is the result of enumerating a run's certificate folders once.
// It must not be modified after List returns.
type Snapshot struct {
	Root    string   `json:"root"`
	Folders []string `json:"folders"`
	Entries []Entry  `json:"entries"`
	// AlternatesChecked is true when more than one folder location was
	// checked for certificates.
	AlternatesChecked bool `json:"alternates_checked"`
	// Complete is false when some folder could only be read partially.
	Complete bool     `json:"complete"`
	Problems []string `json:"problems,omitempty"`
}

// Provider lists the candidate documents below a root directory.
type Provider interface {
	List(ctx context.Context, root string) (*Snapshot, error)
}

// FSProvider reads certificate folders from the local file system.
type FSProvider struct {
	FolderName         string
	AlternativeFolders []string
	Extensions         []string
	Normalizer         *normalize.Normalizer
}

// List resolves the certificate folders under root and enumerates them.
// When root is itself a certificate folder it is read directly; otherwise
// the configured folder names are checked, falling back to root when none of
// them exist.
func (p *FSProvider) List(ctx context.Context, root string) (*Snapshot, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, eris.Wrapf(ErrInaccessible, "listing: stat %s: %v", root, err)
	}
	if !info.IsDir() {
		return nil, eris.Wrapf(ErrInaccessible, "listing: %s is not a directory", root)
	}

	folders, checked, problems := p.resolveFolders(root)
	snap := &Snapshot{
		Root:              root,
		Folders:           folders,
		AlternatesChecked: checked > 1,
		Complete:          len(problems) == 0,
		Problems:          problems,
	}

	norm := p.Normalizer
	if norm == nil {
		norm = normalize.New(normalize.Options{})
	}
	for _, dir := range folders {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "listing: canceled")
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			// ReadDir returns what it could read before failing.
			snap.Complete = false
			snap.Problems = append(snap.Problems, dir+": "+err.Error())
			zap.L().Warn("listing: partial enumeration", zap.String("folder", dir), zap.Error(err))
			if len(folders) == 1 && len(entries) == 0 {
				return nil, eris.Wrapf(ErrInaccessible, "listing: read %s: %v", dir, err)
			}
		}
		for _, e := range entries {
			if e.IsDir() || !p.accepts(e.Name()) {
				continue
			}
			snap.Entries = append(snap.Entries, Entry{
				Filename: e.Name(),
				Path:     filepath.Join(dir, e.Name()),
				Folder:   dir,
				Stem:     norm.Stem(e.Name()),
			})
		}
	}

	zap.L().Info("listing: snapshot built",
		zap.String("root", root),
		zap.Int("folders", len(snap.Folders)),
		zap.Int("entries", len(snap.Entries)),
		zap.Bool("complete", snap.Complete),
	)
	return snap, nil
}

func (p *FSProvider) resolveFolders(root string) (folders []string, checked int, problems []string) {
	names := p.folderNames()
	base := strings.ToLower(filepath.Base(filepath.Clean(root)))
	for _, n := range names {
		if strings.ToLower(n) == base {
			return []string{root}, 1, nil
		}
	}

	for _, n := range names {
		dir := filepath.Join(root, n)
		checked++
		info, err := os.Stat(dir)
		switch {
		case err == nil && info.IsDir():
			folders = append(folders, dir)
		case err != nil && !os.IsNotExist(err):
			problems = append(problems, dir+": "+err.Error())
		}
	}
	if len(folders) == 0 {
		folders = []string{root}
	}
	return folders, checked, problems
}

func (p *FSProvider) folderNames() []string {
	var names []string
	if p.FolderName != "" {
		names = append(names, p.FolderName)
	}
	return append(names, p.AlternativeFolders...)
}

func (p *FSProvider) accepts(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if len(p.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range p.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
