// Package staging copies patch folders out of a read-only source (an
// embedded or packaged asset tree) into a local cache directory, so render
// engines that need real files can open them.
//
// A patch is staged together with every file in its folder, since patches
// refer to their SoundFonts and abstractions by relative path.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/remeh/sizedwaitgroup"
)

// ErrPatchAtRoot is returned for a patch at the root of the source tree.
// Staging it would copy the whole tree.
var ErrPatchAtRoot = errors.New("can't stage a patch from the root directory")

// Stager copies patch folders from Source into CacheDir.
type Stager struct {
	Source   fs.FS
	CacheDir string

	parallel int
	logger   *slog.Logger
}

// Option configures a Stager.
type Option func(*Stager)

// WithParallelism bounds concurrent file copies. Default: runtime.NumCPU().
func WithParallelism(n int) Option {
	return func(s *Stager) {
		if n > 0 {
			s.parallel = n
		}
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Stager) {
		s.logger = l
	}
}

// New creates a Stager.
func New(source fs.FS, cacheDir string, opts ...Option) *Stager {
	s := &Stager{
		Source:   source,
		CacheDir: cacheDir,
		parallel: runtime.NumCPU(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage returns the local path of patchPath, a slash-separated path within
// Source. The patch folder is copied on first use; a cached patch is
// returned as is.
func (s *Stager) Stage(ctx context.Context, patchPath string) (string, error) {
	p := path.Clean(patchPath)
	if !fs.ValidPath(p) {
		return "", fmt.Errorf("stage %q: invalid source path", patchPath)
	}

	local := filepath.Join(s.CacheDir, filepath.FromSlash(p))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	dir := path.Dir(p)
	if dir == "." {
		return "", fmt.Errorf("stage %q: %w", patchPath, ErrPatchAtRoot)
	}

	n, err := s.copyFolder(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("stage %q: %w", patchPath, err)
	}
	if _, err := os.Stat(local); err != nil {
		return "", fmt.Errorf("stage %q: patch missing from source folder: %w", patchPath, err)
	}

	s.logger.Info("patch staged", "patch", patchPath, "folder", dir, "files", n)
	return local, nil
}

// copyFolder copies every file under dir. Returns the number of files copied.
func (s *Stager) copyFolder(ctx context.Context, dir string) (int, error) {
	var files []string
	err := fs.WalkDir(s.Source, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(s.CacheDir, filepath.FromSlash(p))
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return 0, err
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	wg := sizedwaitgroup.New(s.parallel)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
		wg.Add()
		go func(f string) {
			defer wg.Done()
			if err := s.copyFile(f); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(f)
	}
	wg.Wait()

	if firstErr != nil {
		return 0, firstErr
	}
	return len(files), nil
}

func (s *Stager) copyFile(name string) error {
	src, err := s.Source.Open(name)
	if err != nil {
		return err
	}
	defer src.Close()

	target := filepath.Join(s.CacheDir, filepath.FromSlash(name))
	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy %s: %w", name, err)
	}
	return dst.Close()
}

// Trim empties the cache directory.
func (s *Stager) Trim() error {
	entries, err := os.ReadDir(s.CacheDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("trim cache: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.CacheDir, e.Name())); err != nil {
			return fmt.Errorf("trim cache: %w", err)
		}
	}
	s.logger.Debug("cache trimmed", "dir", s.CacheDir, "entries", len(entries))
	return nil
}
