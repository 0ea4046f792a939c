package accounts

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndLoadKey(t *testing.T) {
	key, err := NewKeyFromHex(testKeyHex)
	require.NoError(t, err)
	file := filepath.Join(t.TempDir(), "keys", "key.json")
	require.NoError(t, StoreKey(file, key, "foo", keystore.LightScryptN, keystore.LightScryptP))

	loaded, err := LoadKey(file, "foo")
	require.NoError(t, err)
	assert.Equal(t, key.Address, loaded.Address)
	assert.Equal(t, key.Id, loaded.Id)

	_, err = LoadKey(file, "bar")
	assert.ErrorIs(t, err, ErrInvalidPassphrase)

	_, err = LoadKey(file, "")
	var auth *AuthNeededError
	require.True(t, errors.As(err, &auth))
	assert.Equal(t, "password", auth.Needed)
}
