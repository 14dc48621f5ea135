package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

func TestDirectory_RegisterAndLogin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	dir, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	user, err := dir.Register("alice", "1234")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "1234", user.PasswordHash)
	assert.True(t, dir.Exists(user.ID))

	logged, err := dir.Login("alice", "1234")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)

	// survives reopen
	reopened, err := Open(path, nil)
	require.NoError(t, err)
	got, err := reopened.Get(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestDirectory_RegisterValidation(t *testing.T) {
	dir, err := Open(filepath.Join(t.TempDir(), "users.json"), nil)
	require.NoError(t, err)
	_, err = dir.Register("bob", "secret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "empty username", username: "  ", password: "secret"},
		{name: "short password", username: "carol", password: "123"},
		{name: "duplicate username", username: "bob", password: "another"},
		{name: "duplicate username different case", username: "BOB", password: "another"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dir.Register(tt.username, tt.password)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestDirectory_LoginFailures(t *testing.T) {
	dir, err := Open(filepath.Join(t.TempDir(), "users.json"), nil)
	require.NoError(t, err)
	_, err = dir.Register("alice", "1234")
	require.NoError(t, err)

	_, err = dir.Login("alice", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = dir.Login("nobody", "1234")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = dir.Get("missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
