// Package store provides the tree stores templates are cloned in: Google
// Drive, Quip, and the local filesystem. Every store exposes the same four
// operations so the clone engine is written once against Store.
package store

import (
	"context"

	"github.com/foldersmith/foldersmith/pkg/model"
)

// Store is a tree of folders and documents in one backend.
type Store interface {
	// Type returns the backend type identifier.
	Type() model.BackendType

	// ListChildren returns the direct children of scope in backend listing
	// order. Trashed or deleted entries are excluded.
	ListChildren(ctx context.Context, scope model.Node) ([]model.Node, error)

	// FindByName returns a direct child of scope whose name equals name
	// exactly, or nil when there is none. A nil scope searches the backend's
	// top level and only matches folders. When several nodes match, the
	// first one in backend order is returned.
	FindByName(ctx context.Context, scope *model.Node, name string) (*model.Node, error)

	// CreateFolder creates a folder named name inside parent.
	CreateFolder(ctx context.Context, parent model.Node, name string) (*model.Node, error)

	// DuplicateDocument copies src into dest under exactly the given name,
	// overriding any backend default such as a "Copy of" prefix.
	DuplicateDocument(ctx context.Context, src model.Node, dest model.Node, name string) (*model.Node, error)
}
