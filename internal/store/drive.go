package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/foldersmith/foldersmith/pkg/model"
)

// DriveFolderMimeType marks folders in Google Drive.
const DriveFolderMimeType = "application/vnd.google-apps.folder"

// DriveFolderURL is the web address prefix for Drive folders.
const DriveFolderURL = "https://drive.google.com/drive/folders/"

const driveFileFields = "id, name, mimeType, parents, webViewLink"

var errStopPaging = errors.New("stop paging")

var driveQueryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// DriveStore is a Store backed by the Google Drive v3 API. Drive links
// nodes to a single parent; the top level is every folder the account can
// see, which is how Drive's own name search behaves.
type DriveStore struct {
	files        *drive.FilesService
	sharedDrives bool
}

// DriveOptions configures NewDriveStore.
type DriveOptions struct {
	// SharedDrives includes items on shared drives in listings and lookups.
	SharedDrives bool
}

// NewDriveStore creates a DriveStore. Client options carry credentials and
// endpoint overrides, e.g. option.WithCredentialsFile.
func NewDriveStore(ctx context.Context, opts DriveOptions, clientOpts ...option.ClientOption) (*DriveStore, error) {
	clientOpts = append([]option.ClientOption{option.WithScopes(drive.DriveScope)}, clientOpts...)
	srv, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &DriveStore{files: srv.Files, sharedDrives: opts.SharedDrives}, nil
}

// Type returns the backend type.
func (s *DriveStore) Type() model.BackendType {
	return model.BackendGoogleDrive
}

// ListChildren lists every non-trashed file whose parent is scope.
func (s *DriveStore) ListChildren(ctx context.Context, scope model.Node) ([]model.Node, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", driveQueryEscaper.Replace(scope.ID))
	var nodes []model.Node
	err := s.list(ctx, q, func(f *drive.File) bool {
		nodes = append(nodes, driveNode(f))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", scope.ID, err)
	}
	return nodes, nil
}

// FindByName runs a Drive name query, under scope when given and across the
// account's folders otherwise.
func (s *DriveStore) FindByName(ctx context.Context, scope *model.Node, name string) (*model.Node, error) {
	q := DriveNameQuery(scope, name)
	var found *model.Node
	err := s.list(ctx, q, func(f *drive.File) bool {
		// The query already matches the name; the exact comparison guards
		// against Drive's case-insensitive matching.
		if f.Name != name {
			return true
		}
		n := driveNode(f)
		found = &n
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", name, err)
	}
	return found, nil
}

// CreateFolder creates a folder inside parent.
func (s *DriveStore) CreateFolder(ctx context.Context, parent model.Node, name string) (*model.Node, error) {
	f, err := s.files.Create(&drive.File{
		Name:     name,
		MimeType: DriveFolderMimeType,
		Parents:  []string{parent.ID},
	}).Fields(driveFileFields).SupportsAllDrives(s.sharedDrives).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create folder %q in %s: %w", name, parent.ID, err)
	}
	n := driveNode(f)
	return &n, nil
}

// DuplicateDocument copies src into dest. The name is set explicitly so
// Drive does not apply its "Copy of" prefix.
func (s *DriveStore) DuplicateDocument(ctx context.Context, src model.Node, dest model.Node, name string) (*model.Node, error) {
	f, err := s.files.Copy(src.ID, &drive.File{
		Name:    name,
		Parents: []string{dest.ID},
	}).Fields(driveFileFields).SupportsAllDrives(s.sharedDrives).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("copy %s into %s: %w", src.ID, dest.ID, err)
	}
	n := driveNode(f)
	return &n, nil
}

// list pages through a files.list query, calling fn per file until it
// returns false.
func (s *DriveStore) list(ctx context.Context, q string, fn func(*drive.File) bool) error {
	call := s.files.List().
		Q(q).
		Fields("nextPageToken", "files("+driveFileFields+")").
		PageSize(1000)
	if s.sharedDrives {
		call = call.SupportsAllDrives(true).IncludeItemsFromAllDrives(true)
	}

	err := call.Pages(ctx, func(fl *drive.FileList) error {
		for _, f := range fl.Files {
			if !fn(f) {
				return errStopPaging
			}
		}
		return nil
	})
	if errors.Is(err, errStopPaging) {
		return nil
	}
	return err
}

// DriveNameQuery builds the files.list query for a name lookup.
func DriveNameQuery(scope *model.Node, name string) string {
	q := fmt.Sprintf("name = '%s' and trashed = false", driveQueryEscaper.Replace(name))
	if scope == nil {
		return q + fmt.Sprintf(" and mimeType = '%s'", DriveFolderMimeType)
	}
	return fmt.Sprintf("'%s' in parents and ", driveQueryEscaper.Replace(scope.ID)) + q
}

func driveNode(f *drive.File) model.Node {
	n := model.Node{
		ID:        f.Id,
		Name:      f.Name,
		Kind:      model.KindDocument,
		ParentIDs: f.Parents,
		Link:      f.WebViewLink,
	}
	if f.MimeType == DriveFolderMimeType {
		n.Kind = model.KindFolder
		n.Link = DriveFolderURL + f.Id
	}
	return n
}
