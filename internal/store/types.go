// Package store persists zigvm's installed-version state: which
// toolchain versions are installed, their download provenance, the
// active version pointer, and any discovered system installation.
//
// The store owns a single JSON file. Every read loads the whole file
// and every write atomically replaces it, so callers never hold state
// across operations.
package store

import "time"

// Status represents the lifecycle state of an installed version.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// VerificationStatus records the outcome of artifact verification.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// VersionSystem is the pseudo-version for a toolchain install that
// exists outside zigvm's control.
const VersionSystem = "system"

// VersionMaster identifies the rolling development build.
const VersionMaster = "master"

// InstalledVersion describes one installed toolchain release.
type InstalledVersion struct {
	Version            string             `json:"version"`
	InstallPath        string             `json:"install_path"`
	Status             Status             `json:"status"`
	DownloadedAt       time.Time          `json:"downloaded_at"`
	Checksum           string             `json:"checksum,omitempty"`
	ChecksumVerified   bool               `json:"checksum_verified"`
	Signature          string             `json:"signature,omitempty"`
	SignatureVerified  bool               `json:"signature_verified"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	SourceURL          string             `json:"source_url,omitempty"`
}

// Activatable reports whether this version may be activated.
// Signature verification is mandatory for every managed version.
func (v *InstalledVersion) Activatable() bool {
	return v.Status == StatusCompleted && v.SignatureVerified
}

// SystemInstallation records a toolchain found outside zigvm's control.
// It is trusted because it is already present locally, never verified
// cryptographically, and may go stale if the path disappears.
type SystemInstallation struct {
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
}

// State is the full persisted config store contents.
type State struct {
	Version  int                          `json:"version"` // Schema version for future evolution
	Installs map[string]*InstalledVersion `json:"installs"`
	Active   string                       `json:"active,omitempty"`
	System   *SystemInstallation          `json:"system,omitempty"`
}

// NewState returns an empty state with the current schema version.
func NewState() *State {
	return &State{
		Version:  schemaVersion,
		Installs: make(map[string]*InstalledVersion),
	}
}
