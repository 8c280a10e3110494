// Package restorer seeds a vote store database from a backup file.
package restorer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/textileio/go-durablevote/pkg/backup"
)

// BackupRestorer restores a database from a local or remote backup file.
type BackupRestorer struct {
	source string
	dst    string
	http   *http.Client
}

// NewBackupRestorer creates a new BackupRestorer. The source is a file path or an
// http(s) URL and may be zstd compressed.
func NewBackupRestorer(source string, dst string) *BackupRestorer {
	return &BackupRestorer{
		source: source,
		dst:    dst,
		http:   http.DefaultClient,
	}
}

// Restore writes the backup content to the destination path.
func (br *BackupRestorer) Restore(ctx context.Context) error {
	workDir, err := os.MkdirTemp(path.Dir(br.dst), "restore_*")
	if err != nil {
		return fmt.Errorf("creating work dir: %s", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	local := br.source
	if strings.HasPrefix(br.source, "http://") || strings.HasPrefix(br.source, "https://") {
		local = path.Join(workDir, path.Base(br.source))
		if err := br.download(ctx, local); err != nil {
			return fmt.Errorf("download backup file: %s", err)
		}
	}

	if strings.HasSuffix(local, ".zst") {
		if local == br.source {
			copied := path.Join(workDir, path.Base(local))
			if err := copyFile(local, copied); err != nil {
				return fmt.Errorf("copying backup file: %s", err)
			}
			local = copied
		}
		if local, err = backup.Decompress(local); err != nil {
			return fmt.Errorf("decompress: %s", err)
		}
	}

	if err := copyFile(local, br.dst); err != nil {
		return fmt.Errorf("loading the database: %s", err)
	}
	return nil
}

func (br *BackupRestorer) download(ctx context.Context, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, br.source, nil)
	if err != nil {
		return fmt.Errorf("creating request: %s", err)
	}
	resp, err := br.http.Do(req)
	if err != nil {
		return fmt.Errorf("downloading: %s", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating backup file: %s", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("io copy: %s", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening file: %s", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating file: %s", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying file: %s", err)
	}
	return out.Sync()
}
