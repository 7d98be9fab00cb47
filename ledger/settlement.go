package ledger

import (
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// NewSettlementHash returns a simulated on-chain transaction id: "0x"
// followed by the hex Keccak-256 digest of a random uuid.
func NewSettlementHash() string {
	id := uuid.New()

	h := sha3.NewLegacyKeccak256()
	h.Write(id[:])

	return "0x" + hex.EncodeToString(h.Sum(nil))
}
