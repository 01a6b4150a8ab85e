package snowflake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIDsAreUniqueAndPrefixed(t *testing.T) {
	require.NoError(t, Init(1, 1))

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id, err := MessageID("autosignout")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, "autosignout_"))
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
