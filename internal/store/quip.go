package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foldersmith/foldersmith/pkg/logging"
	"github.com/foldersmith/foldersmith/pkg/model"
)

// ErrQuipChildMissing reports a child that a folder references but that the
// batch lookup did not return.
var ErrQuipChildMissing = errors.New("child missing from quip batch lookup")

const (
	// DefaultQuipEndpoint is the Quip Automation API base URL.
	DefaultQuipEndpoint = "https://platform.quip.com/1/"
	// DefaultQuipWebURL prefixes links to folders and documents.
	DefaultQuipWebURL = "https://quip.com/"
	// DefaultQuipTimeout bounds a single API request.
	DefaultQuipTimeout = 30 * time.Second

	// quipBatchSize caps the ids sent in one batch lookup.
	quipBatchSize = 50
)

// QuipStore is a Store backed by the Quip Automation API. Quip folders hold
// explicit references to child folders and threads (documents) rather than
// children pointing at a parent. The top level is the current user's root
// folders and their direct subfolders.
type QuipStore struct {
	Token      string
	Endpoint   string
	WebURL     string
	HTTPClient *http.Client
}

// NewQuipStore creates a QuipStore authenticating with token.
func NewQuipStore(token string) *QuipStore {
	return &QuipStore{
		Token:      token,
		Endpoint:   DefaultQuipEndpoint,
		WebURL:     DefaultQuipWebURL,
		HTTPClient: &http.Client{Timeout: DefaultQuipTimeout},
	}
}

// WithEndpoint returns a copy of the store that talks to endpoint.
func (s *QuipStore) WithEndpoint(endpoint string) *QuipStore {
	c := *s
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	c.Endpoint = endpoint
	return &c
}

// WithWebURL returns a copy of the store that builds links from webURL.
func (s *QuipStore) WithWebURL(webURL string) *QuipStore {
	c := *s
	if !strings.HasSuffix(webURL, "/") {
		webURL += "/"
	}
	c.WebURL = webURL
	return &c
}

// WithHTTPClient returns a copy of the store using httpClient.
func (s *QuipStore) WithHTTPClient(httpClient *http.Client) *QuipStore {
	c := *s
	c.HTTPClient = httpClient
	return &c
}

// QuipError is a non-2xx response from the Quip API.
type QuipError struct {
	StatusCode  int
	Message     string
	Description string
}

func (e *QuipError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("quip API error %d: %s (%s)", e.StatusCode, e.Message, e.Description)
	}
	return fmt.Sprintf("quip API error %d: %s", e.StatusCode, e.Message)
}

type quipUser struct {
	ID              string   `json:"id"`
	PrivateFolderID string   `json:"private_folder_id"`
	SharedFolderIDs []string `json:"shared_folder_ids"`
	GroupFolderIDs  []string `json:"group_folder_ids"`
}

type quipFolder struct {
	Folder struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		ParentID string `json:"parent_id"`
	} `json:"folder"`
	Children []quipChild `json:"children"`
}

type quipChild struct {
	ThreadID   string `json:"thread_id,omitempty"`
	FolderID   string `json:"folder_id,omitempty"`
	Restricted bool   `json:"restricted,omitempty"`
}

type quipThread struct {
	Thread struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Link      string `json:"link"`
		IsDeleted bool   `json:"is_deleted"`
	} `json:"thread"`
}

// Type returns the backend type.
func (s *QuipStore) Type() model.BackendType {
	return model.BackendQuip
}

// ListChildren resolves the child references of a folder into nodes, keeping
// the folder's own ordering. Deleted threads are skipped. Restricted children
// cannot be read with the store's token; they are skipped and logged. A
// referenced child missing from the batch lookups fails the listing.
func (s *QuipStore) ListChildren(ctx context.Context, scope model.Node) ([]model.Node, error) {
	var folder quipFolder
	if err := s.get(ctx, "folders/"+url.PathEscape(scope.ID), nil, &folder); err != nil {
		return nil, fmt.Errorf("list children of %s: %w", scope.ID, err)
	}

	var folderIDs, threadIDs, restricted []string
	for _, c := range folder.Children {
		switch {
		case c.Restricted:
			restricted = append(restricted, c.FolderID+c.ThreadID)
		case c.FolderID != "":
			folderIDs = append(folderIDs, c.FolderID)
		case c.ThreadID != "":
			threadIDs = append(threadIDs, c.ThreadID)
		}
	}
	if len(restricted) > 0 {
		logging.FromContext(ctx).Warn("skipping restricted quip children", map[string]any{
			"backend":   string(model.BackendQuip),
			"folder_id": scope.ID,
			"child_ids": restricted,
		})
	}

	folders, err := s.folders(ctx, folderIDs)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", scope.ID, err)
	}
	threads, err := s.threads(ctx, threadIDs)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", scope.ID, err)
	}

	var nodes []model.Node
	for _, c := range folder.Children {
		switch {
		case c.Restricted:
		case c.FolderID != "":
			f, ok := folders[c.FolderID]
			if !ok {
				return nil, fmt.Errorf("list children of %s: folder %s: %w", scope.ID, c.FolderID, ErrQuipChildMissing)
			}
			nodes = append(nodes, s.folderNode(f, scope.ID))
		case c.ThreadID != "":
			t, ok := threads[c.ThreadID]
			if !ok {
				return nil, fmt.Errorf("list children of %s: thread %s: %w", scope.ID, c.ThreadID, ErrQuipChildMissing)
			}
			if !t.Thread.IsDeleted {
				nodes = append(nodes, s.threadNode(t, scope.ID))
			}
		}
	}
	return nodes, nil
}

// FindByName matches a child of scope by title. With a nil scope it checks
// the user's root folders, then their direct subfolders.
func (s *QuipStore) FindByName(ctx context.Context, scope *model.Node, name string) (*model.Node, error) {
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

	roots, err := s.rootFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", name, err)
	}
	for _, r := range roots {
		if r.Name == name {
			return &r, nil
		}
	}
	for _, r := range roots {
		children, err := s.ListChildren(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("find %q: %w", name, err)
		}
		for _, c := range children {
			if c.IsFolder() && c.Name == name {
				return &c, nil
			}
		}
	}
	return nil, nil
}

// CreateFolder creates a folder inside parent.
func (s *QuipStore) CreateFolder(ctx context.Context, parent model.Node, name string) (*model.Node, error) {
	form := url.Values{"title": {name}, "parent_id": {parent.ID}}
	var folder quipFolder
	if err := s.post(ctx, "folders/new", form, &folder); err != nil {
		return nil, fmt.Errorf("create folder %q in %s: %w", name, parent.ID, err)
	}
	n := s.folderNode(folder, parent.ID)
	return &n, nil
}

// DuplicateDocument copies a thread into dest with the given title.
func (s *QuipStore) DuplicateDocument(ctx context.Context, src model.Node, dest model.Node, name string) (*model.Node, error) {
	form := url.Values{"thread_id": {src.ID}, "folder_ids": {dest.ID}, "title": {name}}
	var thread quipThread
	if err := s.post(ctx, "threads/copy-document", form, &thread); err != nil {
		return nil, fmt.Errorf("copy %s into %s: %w", src.ID, dest.ID, err)
	}
	n := s.threadNode(thread, dest.ID)
	return &n, nil
}

func (s *QuipStore) rootFolders(ctx context.Context) ([]model.Node, error) {
	var user quipUser
	if err := s.get(ctx, "users/current", nil, &user); err != nil {
		return nil, err
	}

	var ids []string
	if user.PrivateFolderID != "" {
		ids = append(ids, user.PrivateFolderID)
	}
	ids = append(ids, user.SharedFolderIDs...)
	ids = append(ids, user.GroupFolderIDs...)

	folders, err := s.folders(ctx, ids)
	if err != nil {
		return nil, err
	}
	var nodes []model.Node
	for _, id := range ids {
		if f, ok := folders[id]; ok {
			nodes = append(nodes, s.folderNode(f, ""))
		}
	}
	return nodes, nil
}

func (s *QuipStore) folders(ctx context.Context, ids []string) (map[string]quipFolder, error) {
	out := make(map[string]quipFolder, len(ids))
	err := batch(ids, func(chunk []string) error {
		var page map[string]quipFolder
		if err := s.get(ctx, "folders/", url.Values{"ids": {strings.Join(chunk, ",")}}, &page); err != nil {
			return err
		}
		for id, f := range page {
			out[id] = f
		}
		return nil
	})
	return out, err
}

func (s *QuipStore) threads(ctx context.Context, ids []string) (map[string]quipThread, error) {
	out := make(map[string]quipThread, len(ids))
	err := batch(ids, func(chunk []string) error {
		var page map[string]quipThread
		if err := s.get(ctx, "threads/", url.Values{"ids": {strings.Join(chunk, ",")}}, &page); err != nil {
			return err
		}
		for id, t := range page {
			out[id] = t
		}
		return nil
	})
	return out, err
}

func batch(ids []string, fn func([]string) error) error {
	for start := 0; start < len(ids); start += quipBatchSize {
		end := min(start+quipBatchSize, len(ids))
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *QuipStore) get(ctx context.Context, path string, query url.Values, out any) error {
	u := s.Endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return s.do(req, out)
}

func (s *QuipStore) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req, out)
}

func (s *QuipStore) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		qe := &QuipError{StatusCode: resp.StatusCode}
		var payload struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			qe.Message, qe.Description = payload.Error, payload.Description
		} else {
			qe.Message = strings.TrimSpace(string(body))
		}
		return qe
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (s *QuipStore) folderNode(f quipFolder, parentID string) model.Node {
	n := model.Node{
		ID:   f.Folder.ID,
		Name: f.Folder.Title,
		Kind: model.KindFolder,
		Link: s.WebURL + f.Folder.ID,
	}
	if parentID == "" {
		parentID = f.Folder.ParentID
	}
	if parentID != "" {
		n.ParentIDs = []string{parentID}
	}
	return n
}

func (s *QuipStore) threadNode(t quipThread, parentID string) model.Node {
	n := model.Node{
		ID:   t.Thread.ID,
		Name: t.Thread.Title,
		Kind: model.KindDocument,
		Link: t.Thread.Link,
	}
	if n.Link == "" {
		n.Link = s.WebURL + t.Thread.ID
	}
	if parentID != "" {
		n.ParentIDs = []string{parentID}
	}
	return n
}
