package common

import (
	"github.com/google/uuid"
)

// NewMatchID generates a unique match-request correlation ID with the
// "match_" prefix, used to tie together the log lines of one dispatch.
// Format: match_<uuid>
func NewMatchID() string {
	return "match_" + uuid.New().String()
}
