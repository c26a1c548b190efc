package model

// CloneStatus is the terminal outcome of one backend's clone attempt.
type CloneStatus string

const (
	StatusCloned            CloneStatus = "cloned"
	StatusRootNotFound      CloneStatus = "root_not_found"
	StatusTemplateNotFound  CloneStatus = "template_not_found"
	StatusDestinationExists CloneStatus = "destination_exists"
	StatusBackendError      CloneStatus = "backend_error"
)

// CloneResult reports what one backend did with a CloneRequest.
//
// Partial is set on a backend error raised after the destination root was
// created; the nodes counted in FoldersCreated and DocumentsCreated are left
// in place.
type CloneResult struct {
	Backend          BackendType  `json:"backend"`
	Status           CloneStatus  `json:"status"`
	Request          CloneRequest `json:"request"`
	Link             string       `json:"link,omitempty"`
	Detail           string       `json:"detail,omitempty"`
	Partial          bool         `json:"partial,omitempty"`
	FoldersCreated   int          `json:"folders_created"`
	DocumentsCreated int          `json:"documents_created"`
	Err              error        `json:"-"`
}

// OK reports whether the clone completed.
func (r *CloneResult) OK() bool {
	return r.Status == StatusCloned
}

// Created is the total number of nodes this attempt created.
func (r *CloneResult) Created() int {
	return r.FoldersCreated + r.DocumentsCreated
}
