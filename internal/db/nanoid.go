// CLAUDE:SUMMARY ID generation — thin wrapper around hazyhaar/pkg/idgen for 12-char base-36 identifiers
package db

import "github.com/hazyhaar/pkg/idgen"

// NewID generates a 12-character base-36 ID using the canonical idgen package.
// Table rows use integer autoincrement keys; these IDs name sessions and
// artifact files, where insertion order does not matter.
func NewID() string {
	return idgen.New()
}
