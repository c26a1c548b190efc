package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/foldersmith/foldersmith/internal/store"
	"github.com/foldersmith/foldersmith/pkg/model"
)

type fakeFile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents,omitempty"`
	Link     string   `json:"webViewLink,omitempty"`
	trashed  bool
}

// fakeDrive serves the subset of the Drive v3 files API the store uses.
// Listings are paged two files at a time.
type fakeDrive struct {
	mu      sync.Mutex
	files   []*fakeFile
	seq     int
	queries []string
	copies  []map[string]any
}

var (
	parentRe = regexp.MustCompile(`'([^']*)' in parents`)
	nameRe   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
	mimeRe   = regexp.MustCompile(`mimeType = '([^']*)'`)
)

func (d *fakeDrive) add(parent, name, mime string) *fakeFile {
	d.seq++
	f := &fakeFile{ID: fmt.Sprintf("f%d", d.seq), Name: name, MimeType: mime}
	if parent != "" {
		f.Parents = []string{parent}
	}
	if mime != store.DriveFolderMimeType {
		f.Link = "https://docs.google.com/document/d/" + f.ID
	}
	d.files = append(d.files, f)
	return f
}

func (d *fakeDrive) find(id string) *fakeFile {
	for _, f := range d.files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (d *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/files":
		d.list(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/files":
		var in fakeFile
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f := d.add(in.Parents[0], in.Name, in.MimeType)
		_ = json.NewEncoder(w).Encode(f)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/copy"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/files/"), "/copy")
		src := d.find(id)
		if src == nil {
			writeDriveError(w, http.StatusNotFound, "File not found: "+id)
			return
		}
		var in map[string]any
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		d.copies = append(d.copies, in)
		name := "Copy of " + src.Name
		if n, ok := in["name"].(string); ok {
			name = n
		}
		parent := src.Parents[0]
		if ps, ok := in["parents"].([]any); ok && len(ps) > 0 {
			parent = ps[0].(string)
		}
		f := d.add(parent, name, src.MimeType)
		_ = json.NewEncoder(w).Encode(f)
	default:
		writeDriveError(w, http.StatusNotFound, "no route "+r.URL.Path)
	}
}

func (d *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	d.queries = append(d.queries, q)

	var matched []*fakeFile
	for _, f := range d.files {
		if f.trashed {
			continue
		}
		if m := parentRe.FindStringSubmatch(q); m != nil && (len(f.Parents) == 0 || f.Parents[0] != m[1]) {
			continue
		}
		if m := nameRe.FindStringSubmatch(q); m != nil && !strings.EqualFold(f.Name, strings.ReplaceAll(m[1], `\'`, `'`)) {
			continue
		}
		if m := mimeRe.FindStringSubmatch(q); m != nil && f.MimeType != m[1] {
			continue
		}
		matched = append(matched, f)
	}

	start, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
	end := min(start+2, len(matched))
	resp := map[string]any{"files": matched[start:end]}
	if end < len(matched) {
		resp["nextPageToken"] = strconv.Itoa(end)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeDriveError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}

func newDriveStore(t *testing.T, d *fakeDrive) *store.DriveStore {
	t.Helper()
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)

	s, err := store.NewDriveStore(context.Background(), store.DriveOptions{SharedDrives: true},
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return s
}

func TestDriveStore_FindByNameTopLevelMatchesFoldersOnly(t *testing.T) {
	d := &fakeDrive{}
	d.add("", "ClientA", "application/vnd.google-apps.document")
	folder := d.add("", "ClientA", store.DriveFolderMimeType)
	s := newDriveStore(t, d)

	n, err := s.FindByName(context.Background(), nil, "ClientA")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, folder.ID, n.ID)
	assert.Equal(t, model.KindFolder, n.Kind)
	assert.Equal(t, store.DriveFolderURL+folder.ID, n.Link)
}

func TestDriveStore_FindByNameExactCase(t *testing.T) {
	d := &fakeDrive{}
	d.add("", "clienta", store.DriveFolderMimeType)
	s := newDriveStore(t, d)

	n, err := s.FindByName(context.Background(), nil, "ClientA")
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestDriveStore_FindByNameSkipsTrashed(t *testing.T) {
	d := &fakeDrive{}
	root := d.add("", "Root", store.DriveFolderMimeType)
	d.add(root.ID, "Old", store.DriveFolderMimeType).trashed = true
	s := newDriveStore(t, d)

	n, err := s.FindByName(context.Background(), &model.Node{ID: root.ID}, "Old")
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestDriveStore_ListChildrenPages(t *testing.T) {
	d := &fakeDrive{}
	root := d.add("", "Root", store.DriveFolderMimeType)
	for i := range 5 {
		d.add(root.ID, fmt.Sprintf("doc%d", i), "application/vnd.google-apps.document")
	}
	s := newDriveStore(t, d)

	children, err := s.ListChildren(context.Background(), model.Node{ID: root.ID})
	require.NoError(t, err)
	require.Len(t, children, 5)
	for i, c := range children {
		assert.Equal(t, fmt.Sprintf("doc%d", i), c.Name)
		assert.Equal(t, model.KindDocument, c.Kind)
		assert.Equal(t, []string{root.ID}, c.ParentIDs)
	}
	assert.Len(t, d.queries, 3)
}

func TestDriveStore_CreateFolderAndDuplicate(t *testing.T) {
	d := &fakeDrive{}
	root := d.add("", "Root", store.DriveFolderMimeType)
	doc := d.add(root.ID, "Brief", "application/vnd.google-apps.document")
	s := newDriveStore(t, d)
	ctx := context.Background()

	folder, err := s.CreateFolder(ctx, model.Node{ID: root.ID}, "NewProject")
	require.NoError(t, err)
	assert.Equal(t, "NewProject", folder.Name)
	assert.True(t, folder.IsFolder())

	copied, err := s.DuplicateDocument(ctx, model.Node{ID: doc.ID, Name: doc.Name}, *folder, "Brief")
	require.NoError(t, err)
	assert.Equal(t, "Brief", copied.Name)
	assert.Equal(t, []string{folder.ID}, copied.ParentIDs)
	assert.Contains(t, copied.Link, copied.ID)

	require.Len(t, d.copies, 1)
	assert.Equal(t, "Brief", d.copies[0]["name"])
}

func TestDriveStore_APIErrorWrapped(t *testing.T) {
	d := &fakeDrive{}
	root := d.add("", "Root", store.DriveFolderMimeType)
	s := newDriveStore(t, d)

	_, err := s.DuplicateDocument(context.Background(), model.Node{ID: "missing"}, model.Node{ID: root.ID}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy missing into "+root.ID)
}

func TestDriveNameQuery(t *testing.T) {
	assert.Equal(t,
		"name = 'Bob\\'s' and trashed = false and mimeType = 'application/vnd.google-apps.folder'",
		store.DriveNameQuery(nil, "Bob's"))
	assert.Equal(t,
		"'r1' in parents and name = 'New' and trashed = false",
		store.DriveNameQuery(&model.Node{ID: "r1"}, "New"))
}
