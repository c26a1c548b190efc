// Package nameutil normalizes and validates folder and document names.
package nameutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/foldersmith/foldersmith/pkg/errclass"
)

// Normalize trims surrounding whitespace and returns the NFC form of name.
// Stores compare names byte-for-byte, so a name typed in chat and a name
// stored by a backend only match once both are in the same normal form.
func Normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName checks that a folder or document name is usable on every
// backend and returns its normalized form.
func ValidateName(name string) (string, error) {
	name = Normalize(name)
	if name == "" {
		return "", errclass.ErrNameInvalid.WithMessage("name must not be empty")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return "", errclass.ErrNameInvalid.WithMessagef("name must not contain control characters: %q", name)
		}
	}

	return name, nil
}

// ValidateSegment checks that name can be used verbatim as a single
// filesystem path element. Unlike ValidateName it never rewrites the name:
// copies must keep the exact bytes of their source.
func ValidateSegment(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("name must not be empty")
	}

	if name == "." || name == ".." {
		return errclass.ErrNameInvalid.WithMessagef("name must not be a relative path element: %s", name)
	}

	if strings.ContainsAny(name, "/\\\x00") {
		return errclass.ErrNameInvalid.WithMessagef("name must not contain separators or NUL: %q", name)
	}

	return nil
}
