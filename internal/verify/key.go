package verify

// TrustedPublicKey is the upstream release signing key (minisign,
// base64). It is compiled into the binary and never read from a
// remote or user-writable source: every release artifact must carry a
// detached signature that verifies against this key before it is
// trusted.
const TrustedPublicKey = "RWSGOq2NVecA2UPNdBUZykf1CCb147pX3S5aYTOLRSHeYRXjKm5IBA1d"
