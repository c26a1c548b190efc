// Package engine clones a template folder into a new destination folder
// within one tree store. Each Engine is bound to a single store; running
// several backends is the orchestrator's job.
package engine

import (
	"context"
	"slices"

	"github.com/foldersmith/foldersmith/internal/store"
	"github.com/foldersmith/foldersmith/pkg/errclass"
	"github.com/foldersmith/foldersmith/pkg/logging"
	"github.com/foldersmith/foldersmith/pkg/model"
)

// Engine clones templates in one store.
type Engine struct {
	store store.Store
}

// New creates an Engine over s.
func New(s store.Store) *Engine {
	return &Engine{store: s}
}

// Type returns the backend type of the underlying store.
func (e *Engine) Type() model.BackendType {
	return e.store.Type()
}

// Clone resolves the root and template folders, creates the destination
// under the root and copies the template's subtree into it.
//
// The returned error is non-nil only when the request itself is invalid, in
// which case no store call is made. Every other outcome, backend failures
// included, is reported through the result's Status. Nodes created before a
// failure are left in place.
func (e *Engine) Clone(ctx context.Context, req model.CloneRequest) (*model.CloneResult, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	backend := e.store.Type()
	log := logging.FromContext(ctx).WithFields(map[string]any{
		"backend":     string(backend),
		"root":        req.RootName,
		"template":    req.TemplateName,
		"destination": req.DestinationName,
	})
	res := &model.CloneResult{Backend: backend, Request: req}

	root, err := e.store.FindByName(ctx, nil, req.RootName)
	if err != nil {
		return e.fail(log, res, &OpError{Backend: backend, Op: OpFindRoot, Err: err}), nil
	}
	if root == nil {
		return reject(log, res, model.StatusRootNotFound,
			errclass.ErrRootNotFound.WithMessagef("root folder %q not found", req.RootName)), nil
	}

	template, err := e.store.FindByName(ctx, nil, req.TemplateName)
	if err != nil {
		return e.fail(log, res, &OpError{Backend: backend, Op: OpFindTemplate, Err: err}), nil
	}
	if template == nil {
		return reject(log, res, model.StatusTemplateNotFound,
			errclass.ErrTemplateNotFound.WithMessagef("template folder %q not found", req.TemplateName)), nil
	}

	existing, err := e.store.FindByName(ctx, root, req.DestinationName)
	if err != nil {
		return e.fail(log, res, &OpError{Backend: backend, Op: OpFindDestination, NodeID: root.ID, Err: err}), nil
	}
	if existing != nil {
		return reject(log, res, model.StatusDestinationExists,
			errclass.ErrDestinationExists.WithMessagef("%q already exists in %q", req.DestinationName, req.RootName)), nil
	}

	// Another request may create the same destination between the check
	// above and this call; backends that allow duplicate names will then
	// hold two folders with that name.
	dest, err := e.store.CreateFolder(ctx, *root, req.DestinationName)
	if err != nil {
		return e.fail(log, res, &OpError{Backend: backend, Op: OpCreateDestination, NodeID: root.ID, Err: err}), nil
	}
	res.FoldersCreated++
	res.Link = dest.Link
	log = log.WithFields(map[string]any{"template_id": template.ID, "destination_id": dest.ID})

	if err := e.mirror(ctx, log, *template, *dest, res); err != nil {
		res.Partial = true
		return e.fail(log, res, err), nil
	}

	res.Status = model.StatusCloned
	log.Info("template cloned", map[string]any{
		"folders_created":   res.FoldersCreated,
		"documents_created": res.DocumentsCreated,
		"link":              res.Link,
	})
	return res, nil
}

// frame is one folder level of the traversal.
type frame struct {
	src      model.Node
	dest     model.Node
	children []model.Node
	listed   bool
	next     int
	depth    int
}

// mirror copies the children of template into dest depth-first, in the
// order the store lists them. Folders are created and fully populated before
// their next sibling is visited.
//
// Nodes created by this run are never copied again. That keeps the clone
// finite when the destination lies inside the template.
func (e *Engine) mirror(ctx context.Context, log *logging.Logger, template, dest model.Node, res *model.CloneResult) error {
	backend := e.store.Type()
	created := map[string]bool{dest.ID: true}
	stack := []*frame{{src: template, dest: dest}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if !top.listed {
			if err := ctx.Err(); err != nil {
				return &OpError{Backend: backend, Op: OpListChildren, NodeID: top.src.ID, Depth: top.depth, Err: err}
			}
			children, err := e.store.ListChildren(ctx, top.src)
			if err != nil {
				return &OpError{Backend: backend, Op: OpListChildren, NodeID: top.src.ID, Depth: top.depth, Err: err}
			}
			top.children = slices.DeleteFunc(children, func(n model.Node) bool { return created[n.ID] })
			top.listed = true
		}

		if top.next == len(top.children) {
			stack = stack[:len(stack)-1]
			continue
		}
		child := top.children[top.next]
		top.next++
		depth := top.depth + 1

		if child.IsFolder() {
			if slices.ContainsFunc(stack, func(f *frame) bool { return f.src.ID == child.ID }) {
				return &OpError{Backend: backend, Op: OpListChildren, NodeID: child.ID, Depth: depth, Err: ErrCycle}
			}
			folder, err := e.store.CreateFolder(ctx, top.dest, child.Name)
			if err != nil {
				return &OpError{Backend: backend, Op: OpCreateFolder, NodeID: top.dest.ID, Depth: depth, Err: err}
			}
			created[folder.ID] = true
			res.FoldersCreated++
			log.Debug("folder created", map[string]any{"source_id": child.ID, "node_id": folder.ID, "depth": depth})
			stack = append(stack, &frame{src: child, dest: *folder, depth: depth})
			continue
		}

		doc, err := e.store.DuplicateDocument(ctx, child, top.dest, child.Name)
		if err != nil {
			return &OpError{Backend: backend, Op: OpDuplicateDocument, NodeID: child.ID, Depth: depth, Err: err}
		}
		created[doc.ID] = true
		res.DocumentsCreated++
		log.Debug("document copied", map[string]any{"source_id": child.ID, "node_id": doc.ID, "depth": depth})
	}
	return nil
}

func (e *Engine) fail(log *logging.Logger, res *model.CloneResult, err error) *model.CloneResult {
	res.Status = model.StatusBackendError
	res.Err = err
	res.Detail = err.Error()

	fields := map[string]any{
		"partial":           res.Partial,
		"folders_created":   res.FoldersCreated,
		"documents_created": res.DocumentsCreated,
	}
	if oe, ok := err.(*OpError); ok {
		fields["op"] = string(oe.Op)
		fields["node_id"] = oe.NodeID
		fields["depth"] = oe.Depth
	}
	log.ErrorErr("clone failed", err, fields)
	return res
}

func reject(log *logging.Logger, res *model.CloneResult, status model.CloneStatus, err error) *model.CloneResult {
	res.Status = status
	res.Err = err
	res.Detail = err.Error()
	log.Info("clone rejected", map[string]any{"status": string(status)})
	return res
}
