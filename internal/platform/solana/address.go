package solana

import (
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/parasfix/betsol/internal/domain"
)

// ValidateAddress checks that addr is a well-formed Solana account address:
// base58 text decoding to exactly 32 bytes. It returns domain.ErrInvalidWallet
// wrapped with the reason on failure.
func ValidateAddress(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidWallet, addr)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: decoded to %d bytes", domain.ErrInvalidWallet, len(raw))
	}
	return nil
}

// decodeAddress decodes a base58 address into its 32 raw bytes.
func decodeAddress(addr string) ([32]byte, error) {
	var out [32]byte
	raw, err := base58.Decode(addr)
	if err != nil {
		return out, fmt.Errorf("solana: decode address %q: %w", addr, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("solana: address %q decoded to %d bytes, want 32", addr, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
