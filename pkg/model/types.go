package model

// BackendType identifies a tree store implementation.
type BackendType string

const (
	BackendGoogleDrive BackendType = "google-drive"
	BackendQuip        BackendType = "quip"
	BackendLocal       BackendType = "local"
)

// DisplayName returns the name users see in chat replies.
func (b BackendType) DisplayName() string {
	switch b {
	case BackendGoogleDrive:
		return "Google Drive"
	case BackendQuip:
		return "Quip"
	case BackendLocal:
		return "local storage"
	default:
		return string(b)
	}
}

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string
