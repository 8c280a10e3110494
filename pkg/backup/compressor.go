package backup

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const extension = ".zst"

// Compress writes a zstd compressed copy of filepath next to it and returns its path.
func Compress(filepath string) (string, error) {
	src, err := os.Open(filepath)
	if err != nil {
		return "", errors.Errorf("open file: %s", err)
	}
	defer func() { _ = src.Close() }()

	pr, pw := io.Pipe()
	zw, err := zstd.NewWriter(pw)
	if err != nil {
		return "", errors.Errorf("new zstd writer: %s", err)
	}

	var g errgroup.Group
	g.Go(func() error {
		if _, err := io.Copy(zw, src); err != nil {
			_ = pw.CloseWithError(err)
			return errors.Errorf("copy to writer: %s", err)
		}
		if err := zw.Close(); err != nil {
			_ = pw.CloseWithError(err)
			return errors.Errorf("closing writer: %s", err)
		}
		return pw.Close()
	})

	dstPath := filepath + extension
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		_ = pr.CloseWithError(err)
		_ = g.Wait()
		return "", errors.Errorf("open new file: %s", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, bufio.NewReader(pr)); err != nil {
		_ = g.Wait()
		return "", errors.Errorf("copy dest file: %s", err)
	}
	if err := g.Wait(); err != nil {
		return "", errors.Errorf("errgroup wait: %s", err)
	}
	return dstPath, nil
}

// Decompress writes the decompressed copy of a .zst file next to it and returns its path.
func Decompress(filepath string) (string, error) {
	if !strings.HasSuffix(filepath, extension) {
		return "", errors.Errorf("%s doesn't have the %s extension", filepath, extension)
	}

	src, err := os.Open(filepath)
	if err != nil {
		return "", errors.Errorf("open file: %s", err)
	}
	defer func() { _ = src.Close() }()

	zr, err := zstd.NewReader(src)
	if err != nil {
		return "", errors.Errorf("new zstd reader: %s", err)
	}
	defer zr.Close()

	dstPath := strings.TrimSuffix(filepath, extension)
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errors.Errorf("open new file: %s", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, zr); err != nil {
		return "", errors.Errorf("copy dest file: %s", err)
	}
	return dstPath, nil
}
