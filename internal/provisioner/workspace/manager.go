// Package workspace mirrors a working prefix onto the local filesystem and
// back.
package workspace

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cloudconsole/engine/internal/storage"
	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

// Tree is a materialized working prefix.
type Tree struct {
	Project Project
	Dir     string
	// Objects is the number of files downloaded. Zero means the prefix
	// was empty.
	Objects int
}

// Manager owns the process-wide working-tree root. Each saga uses its own
// subdirectory.
type Manager struct {
	store storage.Store
	root  string
}

// NewManager resolves root against the process working directory.
func NewManager(store storage.Store, root string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve working dir %q: %w", root, err)
	}
	return &Manager{store: store, root: abs}, nil
}

// Root returns the absolute working-tree root.
func (m *Manager) Root() string { return m.root }

// Dir returns the local directory for p without creating it.
func (m *Manager) Dir(p Project) string {
	return filepath.Join(m.root, p.DirName())
}

// Materialize downloads every object under prefix into the project's
// local directory, creating it if needed.
func (m *Manager) Materialize(ctx context.Context, prefix string) (*Tree, error) {
	p, err := ParsePrefix(prefix)
	if err != nil {
		return nil, err
	}
	dir := m.Dir(p)
	log := logger.Named("workspace").With(zap.String("prefix", prefix), zap.String("dir", dir))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeStore, "create working directory")
	}

	keys, err := m.store.List(ctx, prefix)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeStore, "list working prefix")
	}

	tree := &Tree{Project: p, Dir: dir}
	for _, key := range keys {
		rel, ok := storage.RelativeKey(prefix, key)
		if !ok || rel == "" {
			continue
		}
		local := filepath.FromSlash(strings.TrimSuffix(rel, "/"))
		if local == "" {
			continue
		}
		if !filepath.IsLocal(local) {
			return nil, appErr.Newf(appErr.CodeStore, "object key %q escapes working directory", key)
		}
		path := filepath.Join(dir, local)
		if strings.HasSuffix(rel, "/") {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return nil, appErr.Wrap(err, appErr.CodeStore, "create directory "+rel)
			}
			continue
		}
		if err := m.download(ctx, key, path); err != nil {
			return nil, err
		}
		tree.Objects++
	}

	log.Info("working prefix materialized", zap.Int("objects", tree.Objects))
	return tree, nil
}

func (m *Manager) download(ctx context.Context, key, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return appErr.Wrap(err, appErr.CodeStore, "create parent directory")
	}
	rc, meta, err := m.store.Get(ctx, key)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeStore, "download "+key)
	}
	defer rc.Close()

	f, err := os.Create(path)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeStore, "create "+path)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return appErr.Wrap(err, appErr.CodeStore, "write "+path)
	}
	if err := f.Close(); err != nil {
		return appErr.Wrap(err, appErr.CodeStore, "close "+path)
	}
	// provider plugins must stay executable for destroy
	if mode, ok := fileMode(meta); ok {
		if err := os.Chmod(path, mode); err != nil {
			return appErr.Wrap(err, appErr.CodeStore, "chmod "+path)
		}
	}
	return nil
}

// fileMode reads the permission bits recorded by MirrorBack.
func fileMode(meta storage.Metadata) (fs.FileMode, bool) {
	v, ok := meta[storage.MetaMode]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 8, 32)
	if err != nil {
		return 0, false
	}
	return fs.FileMode(n) & fs.ModePerm, true
}

// MirrorBack uploads every regular file under dir to prefix, keyed by its
// slash-separated relative path. Directories produce no keys. Permission
// bits are stored as object metadata and restored by Materialize.
func (m *Manager) MirrorBack(ctx context.Context, dir, prefix string) error {
	log := logger.Named("workspace").With(zap.String("prefix", prefix), zap.String("dir", dir))
	uploaded := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			log.Debug("skipping non-regular file", zap.String("path", path))
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := prefix + filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		meta := storage.Metadata{storage.MetaMode: fmt.Sprintf("%04o", info.Mode().Perm())}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := m.store.Put(ctx, key, f, meta); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return appErr.Wrap(err, appErr.CodeStore, "mirror working directory")
	}

	log.Info("working directory mirrored", zap.Int("objects", uploaded))
	return nil
}

// Cleanup removes dir. Failures are logged only.
func (m *Manager) Cleanup(dir string) {
	log := logger.Named("workspace").With(zap.String("dir", dir))
	rel, err := filepath.Rel(m.root, dir)
	if err != nil || !filepath.IsLocal(rel) {
		log.Error("refusing to remove directory outside working root", zap.String("root", m.root))
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Error("failed to remove working directory", zap.Error(err))
		return
	}
	log.Debug("working directory removed")
}
