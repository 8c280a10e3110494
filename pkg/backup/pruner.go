package backup

import (
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Prune removes the oldest backup files of dir, keeping the keep most recent ones.
func Prune(dir string, keep int) error {
	if keep < 1 {
		return errors.New("keep less than one")
	}

	files, err := readBackupFiles(dir)
	if err != nil {
		return errors.Errorf("reading backup files: %s", err)
	}
	if len(files) <= keep {
		return nil
	}

	for _, file := range files[:len(files)-keep] {
		if err := os.Remove(path.Join(dir, file.Name())); err != nil {
			return errors.Errorf("os remove: %s", err)
		}
	}
	return nil
}

// readBackupFiles lists the backup files of dir, oldest first. Names embed the
// backup timestamp so they sort chronologically.
func readBackupFiles(dir string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Errorf("read dir: %s", err)
	}

	files := make([]fs.DirEntry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, FilenamePrefix) {
			continue
		}
		if !strings.HasSuffix(name, ".db") && !strings.HasSuffix(name, ".db"+extension) {
			continue
		}
		files = append(files, e)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	return files, nil
}
