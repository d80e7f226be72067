package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	seed := hex.EncodeToString(make([]byte, 32))

	blob, err := EncryptKey(seed, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, seed, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	seed := hex.EncodeToString(make([]byte, 32))

	blob, err := EncryptKey(seed, "correct")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptKeyRejectsBadSeed(t *testing.T) {
	_, err := EncryptKey("not-hex", "pw")
	assert.Error(t, err)

	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)

	_, err = EncryptKey(hex.EncodeToString(make([]byte, 32)), "")
	assert.Error(t, err)
}

func TestLoadKeyRawSeed(t *testing.T) {
	seed := "0x" + hex.EncodeToString(make([]byte, 32))

	got, err := LoadKey(KeyConfig{RawSeed: seed})
	require.NoError(t, err)
	assert.Equal(t, seed[2:], got)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}
