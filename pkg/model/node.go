package model

// NodeKind classifies a node as a folder or a leaf document.
type NodeKind string

const (
	KindFolder   NodeKind = "folder"
	KindDocument NodeKind = "document"
)

// Node is an entry in a backend's tree.
//
// ID is opaque and assigned by the backend. Name is the display name and is
// what every lookup in this system matches on, even though backends do not
// require sibling names to be unique. ParentIDs is populated when the backend
// reports it: one entry on Drive, the containing folder on Quip.
type Node struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Kind      NodeKind `json:"kind"`
	ParentIDs []string `json:"parent_ids,omitempty"`
	Link      string   `json:"link,omitempty"`
}

// IsFolder reports whether the node can act as a scope.
func (n Node) IsFolder() bool {
	return n.Kind == KindFolder
}
