package xid

import "github.com/google/uuid"

// New returns a prefixed random identifier, e.g. "tx-3f1c...".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
