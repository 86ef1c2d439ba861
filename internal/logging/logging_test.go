package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"production", "PROD", "development", ""} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, l)
	}
}

func TestUserIDIsHashed(t *testing.T) {
	f := UserID("user-123")
	assert.Equal(t, "user_id", f.Key)
	assert.True(t, strings.HasPrefix(f.String, "hash:"))
	assert.Len(t, f.String, len("hash:")+12)
	assert.Equal(t, f.String, UserID("user-123").String)
	assert.Equal(t, "", UserID("").String)
}

func TestEmailKeepsDomain(t *testing.T) {
	assert.Equal(t, "example.com", Email("jo@example.com").String)
	assert.Equal(t, "", Email("nobody").String)
}
