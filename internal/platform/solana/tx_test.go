package solana

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasfix/betsol/internal/domain"
)

func TestValidateAddress(t *testing.T) {
	// 32 zero bytes: the system program address.
	valid := base58.Encode(make([]byte, 32))
	require.NoError(t, ValidateAddress(valid))

	short := base58.Encode(make([]byte, 20))
	assert.ErrorIs(t, ValidateAddress(short), domain.ErrInvalidWallet)

	assert.ErrorIs(t, ValidateAddress("not-base58-0OIl"), domain.ErrInvalidWallet)
	assert.ErrorIs(t, ValidateAddress(""), domain.ErrInvalidWallet)
}

func TestNewSignerFromHexSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}

	s, err := NewSigner(hex.EncodeToString(seed))
	require.NoError(t, err)

	want := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	assert.Equal(t, base58.Encode(want), s.Address())
	require.NoError(t, ValidateAddress(s.Address()))
}

func TestNewSignerFromBase58Secret(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	s, err := NewSigner(base58.Encode(priv))
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(pub), s.Address())
}

func TestNewSignerRejectsGarbage(t *testing.T) {
	_, err := NewSigner("zz")
	assert.Error(t, err)
}

func TestBuildTransferTx(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	s, err := NewSigner(hex.EncodeToString(seed))
	require.NoError(t, err)

	var to [32]byte
	to[0] = 9
	blockhashRaw := make([]byte, 32)
	blockhashRaw[31] = 3
	blockhash := base58.Encode(blockhashRaw)

	const lamports = uint64(500_000_000) // 0.5 SOL

	tx, err := buildTransferTx(s, to, lamports, blockhash)
	require.NoError(t, err)

	// Layout: sig count (1 byte) + signature (64) + message.
	require.Greater(t, len(tx), 65)
	assert.Equal(t, byte(1), tx[0])

	sig := tx[1:65]
	msg := tx[65:]
	assert.True(t, ed25519.Verify(ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey), msg, sig))

	// Header: one required signature, one readonly unsigned account.
	assert.Equal(t, []byte{1, 0, 1}, msg[0:3])
	// Three account keys: payer, destination, system program.
	assert.Equal(t, byte(3), msg[3])
	assert.Equal(t, s.pub[:], msg[4:36])
	assert.Equal(t, to[:], msg[36:68])
	assert.Equal(t, make([]byte, 32), msg[68:100])
	assert.Equal(t, blockhashRaw, msg[100:132])

	// Single instruction: program index 2, accounts [0 1], 12-byte data.
	assert.Equal(t, byte(1), msg[132])
	assert.Equal(t, byte(2), msg[133])
	assert.Equal(t, byte(2), msg[134])
	assert.Equal(t, []byte{0, 1}, msg[135:137])
	assert.Equal(t, byte(12), msg[137])

	data := msg[138:150]
	assert.Equal(t, systemTransferIndex, binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, lamports, binary.LittleEndian.Uint64(data[4:12]))
}

func TestBuildTransferTxBadBlockhash(t *testing.T) {
	s, err := NewSigner(hex.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)

	_, err = buildTransferTx(s, [32]byte{}, 1, "bogus")
	assert.Error(t, err)
}

func TestAppendCompactU16(t *testing.T) {
	assert.Equal(t, []byte{0x05}, appendCompactU16(nil, 5))
	assert.Equal(t, []byte{0x7f}, appendCompactU16(nil, 127))
	assert.Equal(t, []byte{0x80, 0x01}, appendCompactU16(nil, 128))
	assert.Equal(t, []byte{0xff, 0x01}, appendCompactU16(nil, 255))
	assert.Equal(t, []byte{0x80, 0x02}, appendCompactU16(nil, 256))
}
