package engine

import (
	"errors"
	"fmt"

	"github.com/foldersmith/foldersmith/pkg/errclass"
	"github.com/foldersmith/foldersmith/pkg/model"
)

// Op names the store call an OpError came from.
type Op string

const (
	OpFindRoot          Op = "find_root"
	OpFindTemplate      Op = "find_template"
	OpFindDestination   Op = "find_destination"
	OpCreateDestination Op = "create_destination"
	OpListChildren      Op = "list_children"
	OpCreateFolder      Op = "create_folder"
	OpDuplicateDocument Op = "duplicate_document"
)

// ErrCycle is returned when a template folder contains one of its own
// ancestors, which Quip allows because folders may have several parents.
var ErrCycle = errors.New("template folder contains its own ancestor")

// OpError is a store failure during a clone, with enough context to find the
// node involved. It matches errclass.ErrBackend.
type OpError struct {
	Backend model.BackendType
	Op      Op
	// NodeID is the node the call operated on: the listed or copied
	// template node, or the parent of a created folder.
	NodeID string
	// Depth is the template depth of NodeID; the template itself is 0.
	Depth int
	Err   error
}

func (e *OpError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s (depth %d): %v", e.Backend, e.Op, e.NodeID, e.Depth, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the backend error class.
func (e *OpError) Is(target error) bool {
	return errclass.ErrBackend.Is(target)
}
