package booking

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// EventIDPrefix namespaces ids derived from payment sessions so they can
	// never collide with ids the calendar generates itself.
	EventIDPrefix = "bk-"

	// EventIDMaxBody bounds the part after the prefix.
	EventIDMaxBody = 48

	fingerprintLen = 8
)

// DeriveEventID maps a payment session id to the calendar event id used as
// the booking's idempotency key. The same input always yields the same id.
//
// The body is the session id lower-cased, with every character outside
// [a-z0-9-] replaced by '-', runs of '-' collapsed and leading/trailing '-'
// removed. Bodies longer than EventIDMaxBody are cut and end in an 8 hex
// digit sha256 fingerprint of the original input, so ids that share a long
// prefix stay distinct. The result matches ^bk-[a-z0-9-]{1,48}$.
func DeriveEventID(sessionID string) (string, error) {
	body := normalizeID(sessionID)
	if body == "" {
		return "", ErrEmptySessionID
	}
	if len(body) > EventIDMaxBody {
		sum := sha256.Sum256([]byte(sessionID))
		fp := hex.EncodeToString(sum[:])[:fingerprintLen]
		head := strings.TrimRight(body[:EventIDMaxBody-fingerprintLen-1], "-")
		body = head + "-" + fp
	}
	return EventIDPrefix + body, nil
}

func normalizeID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastDash := true // suppresses leading separators
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
