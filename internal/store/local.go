package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/foldersmith/foldersmith/pkg/fsutil"
	"github.com/foldersmith/foldersmith/pkg/logging"
	"github.com/foldersmith/foldersmith/pkg/model"
	"github.com/foldersmith/foldersmith/pkg/nameutil"
)

// LocalStore is a Store over a directory tree. Directories are folders and
// regular files are documents. Node IDs are slash-separated paths relative
// to the store root. Entries whose name starts with a dot count as trashed.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("local store root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("local store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local store root %s is not a directory", abs)
	}
	return &LocalStore{root: abs}, nil
}

// Type returns the backend type.
func (s *LocalStore) Type() model.BackendType {
	return model.BackendLocal
}

// Root returns the absolute store root.
func (s *LocalStore) Root() string {
	return s.root
}

// ListChildren returns the visible directories and regular files in scope,
// sorted by name.
func (s *LocalStore) ListChildren(ctx context.Context, scope model.Node) ([]model.Node, error) {
	dir, err := s.abs(scope.ID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", scope.ID, err)
	}

	var nodes []model.Node
	for _, entry := range entries {
		if hidden(entry.Name()) {
			continue
		}
		switch {
		case entry.IsDir():
			nodes = append(nodes, s.node(path.Join(scope.ID, entry.Name()), model.KindFolder, scope.ID))
		case entry.Type().IsRegular():
			nodes = append(nodes, s.node(path.Join(scope.ID, entry.Name()), model.KindDocument, scope.ID))
		default:
			logging.Debug("skipping non-regular entry", map[string]any{
				"backend": string(model.BackendLocal),
				"path":    path.Join(scope.ID, entry.Name()),
			})
		}
	}
	return nodes, nil
}

// FindByName looks up a child of scope. With a nil scope it walks the whole
// tree in lexical order and returns the first directory named name.
func (s *LocalStore) FindByName(ctx context.Context, scope *model.Node, name string) (*model.Node, error) {
	if scope != nil {
		children, err := s.ListChildren(ctx, *scope)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if c.Name == name {
				return &c, nil
			}
		}
		return nil, nil
	}

	var found *model.Node
	errFound := errors.New("found")
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == s.root {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if hidden(d.Name()) {
			return filepath.SkipDir
		}
		if d.Name() == name {
			rel, err := filepath.Rel(s.root, p)
			if err != nil {
				return err
			}
			id := filepath.ToSlash(rel)
			n := s.node(id, model.KindFolder, path.Dir(id))
			found = &n
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return nil, fmt.Errorf("search %q: %w", name, err)
	}
	return found, nil
}

// CreateFolder creates a directory. It fails if the name is already taken.
func (s *LocalStore) CreateFolder(ctx context.Context, parent model.Node, name string) (*model.Node, error) {
	if err := nameutil.ValidateSegment(name); err != nil {
		return nil, err
	}
	parentDir, err := s.abs(parent.ID)
	if err != nil {
		return nil, err
	}

	if err := os.Mkdir(filepath.Join(parentDir, name), 0o755); err != nil {
		return nil, fmt.Errorf("create folder %s: %w", name, err)
	}
	if err := fsutil.FsyncDir(parentDir); err != nil {
		return nil, fmt.Errorf("create folder %s: %w", name, err)
	}

	n := s.node(path.Join(parent.ID, name), model.KindFolder, parent.ID)
	return &n, nil
}

// DuplicateDocument copies a file, preferring a reflink and falling back to
// a byte copy when the filesystem does not support one.
func (s *LocalStore) DuplicateDocument(ctx context.Context, src model.Node, dest model.Node, name string) (*model.Node, error) {
	if err := nameutil.ValidateSegment(name); err != nil {
		return nil, err
	}
	srcPath, err := s.abs(src.ID)
	if err != nil {
		return nil, err
	}
	destDir, err := s.abs(dest.ID)
	if err != nil {
		return nil, err
	}
	dstPath := filepath.Join(destDir, name)

	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("duplicate %s: %w", src.ID, err)
	}
	if err := reflinkFile(srcPath, dstPath, info); err != nil {
		if _, statErr := os.Lstat(dstPath); statErr == nil {
			return nil, fmt.Errorf("duplicate %s: destination %s exists", src.ID, name)
		}
		if err := fsutil.CopyFile(srcPath, dstPath); err != nil {
			return nil, fmt.Errorf("duplicate %s: %w", src.ID, err)
		}
	}
	if err := fsutil.FsyncDir(destDir); err != nil {
		return nil, fmt.Errorf("duplicate %s: %w", src.ID, err)
	}

	n := s.node(path.Join(dest.ID, name), model.KindDocument, dest.ID)
	return &n, nil
}

// abs maps a node ID to a path inside the store root.
func (s *LocalStore) abs(id string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(id))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("node %q escapes store root", id)
	}
	return p, nil
}

func (s *LocalStore) node(id string, kind model.NodeKind, parentID string) model.Node {
	id = path.Clean(id)
	return model.Node{
		ID:        id,
		Name:      path.Base(id),
		Kind:      kind,
		ParentIDs: []string{path.Clean(parentID)},
		Link:      (&url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(id)))}).String(),
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
