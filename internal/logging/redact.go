package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":      {},
	"env":          {},
	"message":      {},
	"severity":     {},
	"timestamp":    {},
	"error":        {},
	"reason":       {},
	"component":    {},
	"guild_id":     {},
	"proposal_id":  {},
	"account_id":   {},
	"operation_id": {},
	"status":       {},
}

// IsAllowlisted reports whether key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns a sorted copy of the exempt log keys, for tests
// that assert sensitive keys remain masked.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns a slog.Attr that redacts value unless key is
// allowlisted (e.g. principal addresses and bearer tokens are redacted;
// entity ids and statuses are not).
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
