package restorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/textileio/go-durablevote/pkg/backup"
)

func TestRestoreLocal(t *testing.T) {
	t.Parallel()

	result := takeBackup(t, 3)

	dst := path.Join(t.TempDir(), "votes.db")
	require.NoError(t, NewBackupRestorer(result.Path, dst).Restore(context.Background()))
	require.Equal(t, 3, backup.CountRows(t, dst))

	// the source backup is left untouched
	require.FileExists(t, result.Path)
}

func TestRestoreRemote(t *testing.T) {
	t.Parallel()

	result := takeBackup(t, 7)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/backup.db.zst" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.ServeFile(w, r, result.Path)
	}))
	defer server.Close()

	dst := path.Join(t.TempDir(), "votes.db")
	require.NoError(t, NewBackupRestorer(server.URL+"/backup.db.zst", dst).Restore(context.Background()))
	require.Equal(t, 7, backup.CountRows(t, dst))

	err := NewBackupRestorer(server.URL+"/missing.db.zst", dst).Restore(context.Background())
	require.Error(t, err)
}

func takeBackup(t *testing.T, rows int) backup.Result {
	t.Helper()

	backuper, err := backup.NewBackuper(backup.CreateControlDatabase(t, rows), t.TempDir(), backup.WithCompression(true))
	require.NoError(t, err)
	result, err := backuper.Backup(context.Background())
	require.NoError(t, err)
	return result
}
