package solana

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// lamportsPerSOL is the number of lamports in one SOL.
const lamportsPerSOL = 1_000_000_000

// systemTransferIndex is the SystemProgram instruction index for Transfer.
const systemTransferIndex uint32 = 2

// systemProgramID is the all-zero SystemProgram account.
var systemProgramID [32]byte

// Signer holds the treasury keypair used to sign outbound transfers.
type Signer struct {
	priv ed25519.PrivateKey
	pub  [32]byte
}

// NewSigner builds a Signer from a private key string. Accepted forms are a
// hex-encoded 32-byte seed (the keymanager's storage format) and a
// base58-encoded 64-byte secret key (the format Solana wallets export).
func NewSigner(key string) (*Signer, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "0x"))

	if raw, err := hex.DecodeString(key); err == nil && len(raw) == ed25519.SeedSize {
		return signerFromPrivate(ed25519.NewKeyFromSeed(raw))
	}

	raw, err := base58.Decode(key)
	if err != nil {
		return nil, fmt.Errorf("solana: private key is neither 32-byte hex seed nor base58: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return signerFromPrivate(ed25519.PrivateKey(raw))
	case ed25519.SeedSize:
		return signerFromPrivate(ed25519.NewKeyFromSeed(raw))
	default:
		return nil, fmt.Errorf("solana: secret key decoded to %d bytes, want 32 or 64", len(raw))
	}
}

func signerFromPrivate(priv ed25519.PrivateKey) (*Signer, error) {
	s := &Signer{priv: priv}
	copy(s.pub[:], priv.Public().(ed25519.PublicKey))
	return s, nil
}

// Address returns the signer's base58 account address.
func (s *Signer) Address() string {
	return base58.Encode(s.pub[:])
}

// buildTransferTx assembles, signs, and serializes a legacy transaction with
// a single SystemProgram transfer instruction from the signer's account.
func buildTransferTx(s *Signer, to [32]byte, lamports uint64, recentBlockhash string) ([]byte, error) {
	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil || len(blockhash) != 32 {
		return nil, fmt.Errorf("solana: bad blockhash %q", recentBlockhash)
	}

	// Instruction data: u32 LE instruction index, u64 LE lamports.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	// Message: header, account keys [payer, dest, system program],
	// blockhash, one instruction referencing accounts 0 and 1.
	var msg []byte
	msg = append(msg, 1, 0, 1) // 1 signer, 0 readonly signed, 1 readonly unsigned
	msg = appendCompactU16(msg, 3)
	msg = append(msg, s.pub[:]...)
	msg = append(msg, to[:]...)
	msg = append(msg, systemProgramID[:]...)
	msg = append(msg, blockhash...)
	msg = appendCompactU16(msg, 1) // instruction count
	msg = append(msg, 2)           // program id index
	msg = appendCompactU16(msg, 2) // account index count
	msg = append(msg, 0, 1)
	msg = appendCompactU16(msg, uint16(len(data)))
	msg = append(msg, data...)

	sig := ed25519.Sign(s.priv, msg)

	var tx []byte
	tx = appendCompactU16(tx, 1) // signature count
	tx = append(tx, sig...)
	tx = append(tx, msg...)
	return tx, nil
}

// appendCompactU16 appends v in the compact-u16 (shortvec) encoding used by
// Solana's wire format.
func appendCompactU16(b []byte, v uint16) []byte {
	for {
		if v < 0x80 {
			return append(b, byte(v))
		}
		b = append(b, byte(v&0x7f)|0x80)
		v >>= 7
	}
}
