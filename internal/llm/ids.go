package llm

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// ID prefixes for generated identifiers.
const (
	PrefixResponse     = "resp_"
	PrefixMessage      = "msg_"
	PrefixFunctionCall = "fc_"
	PrefixCall         = "call_"
)

// NewID returns prefix followed by 16 random hex characters.
func NewID(prefix string) string {
	u := uuid.New()
	return prefix + hex.EncodeToString(u[:8])
}
