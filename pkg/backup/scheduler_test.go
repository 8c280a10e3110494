package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backuper, err := NewBackuper(CreateControlDatabase(t, 5), dir)
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	backuper.clock = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	scheduler, err := NewScheduler(50*time.Millisecond, backuper)
	require.NoError(t, err)
	results := make(chan error)
	scheduler.onBackup = func(_ Result, err error) { results <- err }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, <-results)
	}
	cancel()
	// drains a backup that may race with the cancellation
	go func() {
		for range results {
		}
	}()
	<-done
	close(results)

	files, err := readBackupFiles(dir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(files), 3)

	_, err = NewScheduler(0, backuper)
	require.Error(t, err)
}
