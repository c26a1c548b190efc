package model

import (
	"errors"
	"strings"

	"github.com/foldersmith/foldersmith/pkg/errclass"
	"github.com/foldersmith/foldersmith/pkg/nameutil"
)

// CloneRequest names the three folders involved in one clone.
type CloneRequest struct {
	RootName        string `json:"root_name"`
	TemplateName    string `json:"template_name"`
	DestinationName string `json:"destination_name"`
}

// Normalize validates the request and returns a copy with every name in
// normalized form. Missing names are reported together as
// E_REQUEST_INVALID; a present but unusable name is E_NAME_INVALID.
func (r CloneRequest) Normalize() (CloneRequest, error) {
	var missing []string
	fields := []struct {
		label string
		value *string
	}{
		{"root", &r.RootName},
		{"template", &r.TemplateName},
		{"destination", &r.DestinationName},
	}

	for _, f := range fields {
		if nameutil.Normalize(*f.value) == "" {
			missing = append(missing, f.label)
		}
	}
	if len(missing) > 0 {
		return CloneRequest{}, errclass.ErrRequestInvalid.WithMessagef("missing %s folder name", strings.Join(missing, ", "))
	}

	for _, f := range fields {
		name, err := nameutil.ValidateName(*f.value)
		if err != nil {
			return CloneRequest{}, err
		}
		*f.value = name
	}
	return r, nil
}

// IsCallerError reports whether err was caused by the request itself rather
// than by a backend.
func IsCallerError(err error) bool {
	return errors.Is(err, errclass.ErrRequestInvalid) || errors.Is(err, errclass.ErrNameInvalid)
}
