// Package types defines core domain types shared across sluice packages.
//
//nolint:revive // types is a common Go package naming convention
package types

// Version is the canonical project version.
// The CLI, the record frame format and the notification payloads share it.
const Version = "0.3.0"

// ContractVersion is stamped on every notification payload.
// Lockstep with Version.
const ContractVersion = Version
