package backup

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrune(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	names := []string{
		FilenamePrefix + "_20230101T000000.000000000Z.db",
		FilenamePrefix + "_20230102T000000.000000000Z.db.zst",
		FilenamePrefix + "_20230103T000000.000000000Z.db",
		FilenamePrefix + "_20230104T000000.000000000Z.db.zst",
		"unrelated.db",
		FilenamePrefix + "_notes.txt",
	}
	for _, name := range names {
		require.NoError(t, os.WriteFile(path.Join(dir, name), []byte("x"), 0o644))
	}

	require.NoError(t, Prune(dir, 2))

	files, err := readBackupFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, names[2], files[0].Name())
	require.Equal(t, names[3], files[1].Name())
	require.FileExists(t, path.Join(dir, "unrelated.db"))
	require.FileExists(t, path.Join(dir, FilenamePrefix+"_notes.txt"))

	require.Error(t, Prune(dir, 0))
}
