package ledger

import (
	"strings"

	"github.com/google/uuid"
)

const (
	AccountPrefix = "ACC"
	WalletPrefix  = "WAL"
)

// NewReference returns a display reference such as ACC4F1C09D2B7E3A811.
func NewReference(prefix string) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + raw[:16]
}

// NewFundingReference returns a wallet funding reference carrying a full
// UUID, unique across every funding intent.
func NewFundingReference() string {
	return WalletPrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
