// Package host implements the local filesystem side of reconciliation:
// directory and file inspection, idempotent directory creation and atomic
// file materialization.
package host

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/moby/sys/atomicwriter"
	"github.com/openfroyo/stackprov/pkg/engine"
	"github.com/rs/zerolog"
)

// LocalFS implements engine.HostFS against the local filesystem.
type LocalFS struct {
	logger zerolog.Logger
}

// NewLocalFS creates a local filesystem adapter.
func NewLocalFS(logger zerolog.Logger) *LocalFS {
	return &LocalFS{logger: logger.With().Str("component", "host-fs").Logger()}
}

// InspectDirectory reports whether path is a directory, absent, or occupied
// by something else. A symlink to a directory counts as the directory.
func (l *LocalFS) InspectDirectory(_ context.Context, path string) (*engine.State, error) {
	info, err := lstatDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &engine.State{Status: engine.StateNotExists}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return &engine.State{Status: engine.StateConflict}, nil
	}
	return &engine.State{Status: engine.StateExists, Mode: info.Mode().Perm()}, nil
}

// InspectFile reports the content hash of a regular file at path.
func (l *LocalFS) InspectFile(_ context.Context, path string) (*engine.State, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &engine.State{Status: engine.StateNotExists}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return &engine.State{Status: engine.StateConflict}, nil
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, err
	}
	return &engine.State{Status: engine.StateExists, Hash: hash}, nil
}

// HashSource returns the SHA256 of the source content.
func (l *LocalFS) HashSource(_ context.Context, src engine.SourceRef) (string, error) {
	return hashFile(src.Path())
}

// EnsureDirectory creates path with mode, or corrects the mode of an
// existing directory. A non-directory at path is a path conflict and is left
// untouched.
func (l *LocalFS) EnsureDirectory(ctx context.Context, path string, mode os.FileMode) (bool, error) {
	info, err := lstatDir(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.Mkdir(path, mode); err != nil {
			if errors.Is(err, fs.ErrExist) {
				// Raced with another writer; re-inspect.
				return l.EnsureDirectory(ctx, path, mode)
			}
			return false, fmt.Errorf("failed to create directory %s: %w", path, err)
		}
		// Mkdir is subject to the umask
		if err := os.Chmod(path, mode); err != nil {
			return true, fmt.Errorf("failed to set mode on %s: %w", path, err)
		}
		l.logger.Debug().Str("path", path).Str("mode", fmt.Sprintf("%04o", mode)).Msg("Created directory")
		return true, nil

	case err != nil:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)

	case !info.IsDir():
		return false, engine.NewPathConflictError(path).WithOperation(string(engine.ActionCreateDirectory))

	case info.Mode().Perm() != mode.Perm():
		if err := os.Chmod(path, mode); err != nil {
			return false, fmt.Errorf("failed to set mode on %s: %w", path, err)
		}
		l.logger.Debug().
			Str("path", path).
			Str("from", fmt.Sprintf("%04o", info.Mode().Perm())).
			Str("to", fmt.Sprintf("%04o", mode.Perm())).
			Msg("Corrected directory mode")
		return true, nil

	default:
		return false, nil
	}
}

// CopyFile reads src completely and then atomically replaces dst, so a
// failure leaves any previous destination content intact.
func (l *LocalFS) CopyFile(_ context.Context, src engine.SourceRef, dst string, mode os.FileMode) error {
	if info, err := os.Lstat(dst); err == nil && !info.Mode().IsRegular() {
		return engine.NewPathConflictError(dst).WithOperation(string(engine.ActionCopyFile))
	}

	content, err := os.ReadFile(src.Path())
	if err != nil {
		return fmt.Errorf("failed to read source %s: %w", src, err)
	}

	if err := atomicwriter.WriteFile(dst, content, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}

	sum := sha256.Sum256(content)
	l.logger.Debug().
		Str("source", src.Path()).
		Str("destination", dst).
		Int("bytes", len(content)).
		Str("checksum", fmt.Sprintf("%x", sum)).
		Msg("Materialized file")
	return nil
}

// lstatDir is os.Lstat, except that a symlink resolving to a directory
// reports the directory. Dangling links and links to anything else are
// returned as the link itself.
func lstatDir(path string) (fs.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		return info, err
	}
	target, err := os.Stat(path)
	if err != nil || !target.IsDir() {
		return info, nil
	}
	return target, nil
}

// hashFile returns the hex SHA256 of a file's content.
func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
