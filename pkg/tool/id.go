package tool

import (
	"strings"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GeneratePublicToken returns an opaque, unguessable token with the given prefix,
// e.g. "pl_3f0c...". Random (v4) so that tokens do not reveal creation order.
func GeneratePublicToken(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
