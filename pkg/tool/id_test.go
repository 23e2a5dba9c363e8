package tool

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUIDV7(t *testing.T) {
	id := GenerateUUIDV7()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), parsed.Version())
}

func TestGeneratePublicToken(t *testing.T) {
	a := GeneratePublicToken("pl_")
	b := GeneratePublicToken("pl_")
	require.True(t, strings.HasPrefix(a, "pl_"))
	require.Len(t, a, 3+32)
	require.NotEqual(t, a, b)
}
