package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/logger"
)

// Store saves, reads and deletes image assets. Paths handed out and accepted
// are slash-separated and relative to the store root.
type Store interface {
	// Save stores data under the asset type's directory, optionally below
	// dirHint, and returns the new asset's path
	Save(assetType AssetType, dirHint string, filename string, data io.Reader) (string, error)
	// Open returns a reader for an asset. A missing asset yields an error
	// wrapping os.ErrNotExist.
	Open(rel string) (io.ReadCloser, error)
	// Exists reports whether the asset is present
	Exists(rel string) bool
	// Delete removes an asset; a missing asset is not an error
	Delete(rel string) error
}

// LocalStorage keeps assets on the local filesystem below root.
type LocalStorage struct {
	root string
	dirs map[AssetType]string // asset type to absolute directory
}

// NewLocalStorage creates root and one directory per asset type below it.
func NewLocalStorage(root string, subDirs map[AssetType]string) (*LocalStorage, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid storage root %q: %w", root, err)
	}
	ls := &LocalStorage{root: absRoot, dirs: make(map[AssetType]string, len(subDirs))}
	for assetType, sub := range subDirs {
		dir := filepath.Join(absRoot, sub)
		if !within(absRoot, dir) || dir == absRoot {
			return nil, fmt.Errorf("storage directory %q for %s must be below %s", sub, assetType, absRoot)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
		ls.dirs[assetType] = dir
	}

	logger.L().Info("media.store: local storage ready", zap.String("root", absRoot), zap.Int("asset_types", len(ls.dirs)))
	return ls, nil
}

func within(base, p string) bool {
	rel, err := filepath.Rel(base, filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Save writes data to a temporary file next to its destination and renames
// it into place, so a failed upload never leaves a partial asset behind.
func (ls *LocalStorage) Save(assetType AssetType, dirHint string, filename string, data io.Reader) (string, error) {
	dir, ok := ls.dirs[assetType]
	if !ok {
		return "", fmt.Errorf("asset type %q is not configured", assetType)
	}
	if filename == "" || filename != filepath.Base(filename) || filename == ".." {
		return "", fmt.Errorf("invalid asset filename %q", filename)
	}
	if dirHint != "" {
		dir = filepath.Join(dir, dirHint)
		if !within(ls.dirs[assetType], dir) {
			return "", fmt.Errorf("invalid asset directory %q", dirHint)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create asset directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	dest := filepath.Join(dir, filename)
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to flush %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move asset into %s: %w", dest, err)
	}

	rel, err := filepath.Rel(ls.root, dest)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", dest, err)
	}
	logger.L().Debug("media.store: saved asset", zap.String("path", dest))
	return filepath.ToSlash(rel), nil
}

func (ls *LocalStorage) Open(rel string) (io.ReadCloser, error) {
	full, err := ls.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset %s: %w", rel, err)
	}
	return f, nil
}

func (ls *LocalStorage) Exists(rel string) bool {
	full, err := ls.resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

func (ls *LocalStorage) Delete(rel string) error {
	full, err := ls.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete asset %s: %w", rel, err)
	}
	logger.L().Debug("media.store: deleted asset", zap.String("path", full))
	return nil
}

// resolve maps a store-relative path to an absolute one, refusing paths that
// leave the root
func (ls *LocalStorage) resolve(rel string) (string, error) {
	full := filepath.Join(ls.root, filepath.FromSlash(rel))
	if !within(ls.root, full) || full == ls.root {
		return "", fmt.Errorf("asset path %q is outside the store", rel)
	}
	return full, nil
}
