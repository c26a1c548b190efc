package store

import (
	"context"
	"net/http"

	"google.golang.org/api/option"

	"github.com/foldersmith/foldersmith/pkg/config"
	"github.com/foldersmith/foldersmith/pkg/errclass"
	"github.com/foldersmith/foldersmith/pkg/model"
)

// New creates the store for backendType from cfg.
func New(ctx context.Context, backendType model.BackendType, cfg *config.Config) (Store, error) {
	switch backendType {
	case model.BackendGoogleDrive:
		opts := []option.ClientOption{option.WithCredentialsFile(cfg.Drive.CredentialsFile)}
		if cfg.Drive.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Drive.Endpoint))
		}
		return NewDriveStore(ctx, DriveOptions{SharedDrives: cfg.Drive.SharedDrives}, opts...)
	case model.BackendQuip:
		s := NewQuipStore(cfg.Quip.AccessToken)
		if cfg.Quip.BaseURL != "" {
			s = s.WithEndpoint(cfg.Quip.BaseURL)
		}
		if cfg.Quip.WebURL != "" {
			s = s.WithWebURL(cfg.Quip.WebURL)
		}
		if cfg.Quip.Timeout > 0 {
			s = s.WithHTTPClient(&http.Client{Timeout: cfg.Quip.Timeout})
		}
		return s, nil
	case model.BackendLocal:
		return NewLocalStore(cfg.Local.Root)
	default:
		return nil, errclass.ErrBackendUnknown.WithMessagef("unknown backend %q", backendType)
	}
}

// NewAll creates a store for every configured backend, in configured order.
func NewAll(ctx context.Context, cfg *config.Config) ([]Store, error) {
	types := cfg.BackendTypes()
	stores := make([]Store, 0, len(types))
	for _, t := range types {
		s, err := New(ctx, t, cfg)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, nil
}
