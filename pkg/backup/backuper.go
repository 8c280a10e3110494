package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// FilenamePrefix is the prefix used in every backup file.
const FilenamePrefix = "votes_backup"

// ErrInProgress indicates that another backup of the same database is running.
var ErrInProgress = errors.New("backup already in progress")

// Config contains configuration parameters for the Backuper.
type Config struct {
	Compression bool
	Vacuum      bool
	Pruning     bool
	KeepFiles   int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		KeepFiles: 5,
	}
}

// Option modifies a configuration attribute.
type Option func(*Config) error

// WithCompression enables zstd compression of backup files.
func WithCompression(v bool) Option {
	return func(c *Config) error {
		c.Compression = v
		return nil
	}
}

// WithVacuum runs VACUUM on the backup copy.
func WithVacuum(v bool) Option {
	return func(c *Config) error {
		c.Vacuum = v
		return nil
	}
}

// WithPruning keeps only the most recent keep backup files.
func WithPruning(v bool, keep int) Option {
	return func(c *Config) error {
		if v && keep < 1 {
			return errors.Errorf("keep files must be positive, got %d", keep)
		}
		c.Pruning = v
		c.KeepFiles = keep
		return nil
	}
}

// Result describes a finished backup.
type Result struct {
	Timestamp time.Time
	Path      string

	ElapsedTime            time.Duration
	VacuumElapsedTime      time.Duration
	CompressionElapsedTime time.Duration
	Size                   int64
	SizeAfterVacuum        int64
	SizeAfterCompression   int64
}

// Backuper copies a SQLite vote store to timestamped files using the SQLite online backup API.
type Backuper struct {
	sourcePath string
	dir        string
	config     *Config

	clock   func() time.Time
	running atomic.Bool
}

// NewBackuper creates a new Backuper of the SQLite database at sourcePath writing into dir.
func NewBackuper(sourcePath string, dir string, opts ...Option) (*Backuper, error) {
	config := DefaultConfig()
	for _, o := range opts {
		if err := o(config); err != nil {
			return nil, errors.Errorf("applying option: %s", err)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Errorf("os mkdir all: %s", err)
	}

	return &Backuper{
		sourcePath: sourcePath,
		dir:        dir,
		config:     config,
		clock:      time.Now,
	}, nil
}

// Backup takes a backup of the source database. Concurrent calls fail with ErrInProgress.
func (b *Backuper) Backup(ctx context.Context) (Result, error) {
	if !b.running.CompareAndSwap(false, true) {
		return Result{}, ErrInProgress
	}
	defer b.running.Store(false)

	timestamp := b.clock().UTC()
	filename := path.Join(b.dir, fmt.Sprintf("%s_%s.db", FilenamePrefix, timestamp.Format("20060102T150405.000000000Z")))

	result, err := b.copy(ctx, filename)
	if err != nil {
		_ = os.Remove(filename)
		return Result{}, err
	}
	result.Timestamp = timestamp

	if b.config.Compression {
		start := time.Now()
		compressed, err := Compress(filename)
		if err != nil {
			_ = os.Remove(filename)
			return Result{}, errors.Errorf("compress: %s", err)
		}
		if err := os.Remove(filename); err != nil {
			return Result{}, errors.Errorf("os remove: %s", err)
		}
		result.Path = compressed
		result.CompressionElapsedTime = time.Since(start)
		if result.SizeAfterCompression, err = fileSize(compressed); err != nil {
			return Result{}, err
		}
	}

	if b.config.Pruning {
		if err := Prune(b.dir, b.config.KeepFiles); err != nil {
			return Result{}, errors.Errorf("prune: %s", err)
		}
	}

	return result, nil
}

func (b *Backuper) copy(ctx context.Context, filename string) (Result, error) {
	source, err := open(b.sourcePath)
	if err != nil {
		return Result{}, errors.Errorf("opening source db: %s", err)
	}
	defer func() { _ = source.Close() }()

	dest, err := open(filename)
	if err != nil {
		return Result{}, errors.Errorf("opening backup db: %s", err)
	}
	defer func() { _ = dest.Close() }()

	start := time.Now()
	srcConn, err := source.Conn(ctx)
	if err != nil {
		return Result{}, errors.Errorf("getting db conn: %s", err)
	}
	defer func() { _ = srcConn.Close() }()
	dstConn, err := dest.Conn(ctx)
	if err != nil {
		return Result{}, errors.Errorf("getting backup db conn: %s", err)
	}
	defer func() { _ = dstConn.Close() }()

	if err := srcConn.Raw(func(in interface{}) error {
		return dstConn.Raw(func(out interface{}) error {
			return backupRaw(in.(*sqlite3.SQLiteConn), out.(*sqlite3.SQLiteConn))
		})
	}); err != nil {
		return Result{}, errors.Errorf("backup: %s", err)
	}

	result := Result{Path: filename, ElapsedTime: time.Since(start)}
	if result.Size, err = fileSize(filename); err != nil {
		return Result{}, err
	}

	if b.config.Vacuum {
		start := time.Now()
		if _, err := dstConn.ExecContext(ctx, "VACUUM"); err != nil {
			return Result{}, errors.Errorf("exec vacuum: %s", err)
		}
		result.VacuumElapsedTime = time.Since(start)
		if result.SizeAfterVacuum, err = fileSize(filename); err != nil {
			return Result{}, err
		}
	}

	return result, nil
}

// backupRaw copies every page of in to out in a single step.
func backupRaw(in, out *sqlite3.SQLiteConn) error {
	bk, err := out.Backup("main", in, "main")
	if err != nil {
		return errors.Errorf("initializing backup: %s", err)
	}

	done, err := bk.Step(-1)
	if err != nil {
		_ = bk.Finish()
		return errors.Errorf("performing backup step: %s", err)
	}
	if !done {
		_ = bk.Finish()
		return errors.New("backup is unexpectedly not done")
	}
	if remaining := bk.Remaining(); remaining != 0 {
		_ = bk.Finish()
		return errors.Errorf("unexpected remaining pages: %d", remaining)
	}

	if err := bk.Finish(); err != nil {
		return errors.Errorf("finishing backup: %s", err)
	}
	return nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Errorf("opening db: %s", err)
	}
	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Errorf("pinging db: %s", err)
	}
	return db, nil
}

func fileSize(filename string) (int64, error) {
	fi, err := os.Stat(filename)
	if err != nil {
		return 0, errors.Errorf("os stat: %s", err)
	}
	return fi.Size(), nil
}
