// Package mirror maintains the download mirror registry: a ranked set
// of HTTPS base URLs that re-host upstream release artifacts.
//
// Ranks start at 1 and grow as failures are observed against a mirror
// (lower is better). The registry is persisted as a TOML file separate
// from the config store, with the same atomic-write discipline, and is
// rebuilt wholesale from the upstream community list on sync.
package mirror

// Mirror is one ranked mirror entry.
type Mirror struct {
	URL  string `toml:"url"`
	Rank int    `toml:"rank"`
}

// FailureClass categorizes a download failure observed against a mirror.
type FailureClass string

const (
	// FailureTimeout covers transport-level failures: connection errors,
	// timeouts, and non-success HTTP statuses.
	FailureTimeout FailureClass = "timeout"
	// FailureSignature means the artifact's detached signature was
	// missing or did not verify.
	FailureSignature FailureClass = "signature"
	// FailureChecksum means the artifact's checksum did not match the
	// expected digest.
	FailureChecksum FailureClass = "checksum"
)

// Penalty returns the rank penalty for a failure class.
// Integrity failures are penalized harder than transport failures.
func (c FailureClass) Penalty() int {
	switch c {
	case FailureSignature, FailureChecksum:
		return 2
	default:
		return 1
	}
}

// registryFile is the persisted TOML schema.
type registryFile struct {
	LastSyncedAt string   `toml:"last_synced_at,omitempty"`
	Mirrors      []Mirror `toml:"mirrors,omitempty"`
}
