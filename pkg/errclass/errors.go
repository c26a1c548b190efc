// Package errclass defines the stable, machine-readable error classes
// reported by foldersmith.
package errclass

import "fmt"

// ClassError is a stable, machine-readable error class.
type ClassError struct {
	Code    string
	Message string
}

func (e *ClassError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ClassError) Is(target error) bool {
	t, ok := target.(*ClassError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new ClassError with the same Code but a specific message.
func (e *ClassError) WithMessage(msg string) *ClassError {
	return &ClassError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new ClassError with a formatted message.
func (e *ClassError) WithMessagef(format string, args ...any) *ClassError {
	return &ClassError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Stable error classes.
var (
	ErrRequestInvalid    = &ClassError{Code: "E_REQUEST_INVALID"}
	ErrNameInvalid       = &ClassError{Code: "E_NAME_INVALID"}
	ErrRootNotFound      = &ClassError{Code: "E_ROOT_NOT_FOUND"}
	ErrTemplateNotFound  = &ClassError{Code: "E_TEMPLATE_NOT_FOUND"}
	ErrDestinationExists = &ClassError{Code: "E_DESTINATION_EXISTS"}
	ErrBackend           = &ClassError{Code: "E_BACKEND"}
	ErrBackendUnknown    = &ClassError{Code: "E_BACKEND_UNKNOWN"}
	ErrConfigInvalid     = &ClassError{Code: "E_CONFIG_INVALID"}
	ErrSignatureInvalid  = &ClassError{Code: "E_SIGNATURE_INVALID"}
	ErrAuditChainBroken  = &ClassError{Code: "E_AUDIT_CHAIN_BROKEN"}
)
