package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// BuildDedupeKey computes the stable event fingerprint used by the
// usage_events uniqueness constraint. Priority: message-id + request-id,
// then message-id alone, then request-id alone, then a fingerprint of
// (timestamp, session, input tokens, output tokens).
//
// The fingerprint fallback can collide for two genuinely distinct events
// with identical token counts in the same second of the same conversation.
// That false-duplicate risk is accepted; re-ingestion idempotence matters
// more than distinguishing numerically identical retries. The fallback also
// under-deduplicates in the other direction: a line with no IDs and a
// corrupted timestamp gets wall-clock now substituted upstream, so each
// re-scan of that line fingerprints to a fresh key and inserts a new row.
func BuildDedupeKey(messageID, requestID string, ts time.Time, sessionID string, inputTokens, outputTokens int64) string {
	messageID = strings.TrimSpace(messageID)
	requestID = strings.TrimSpace(requestID)

	switch {
	case messageID != "" && requestID != "":
		return "msgreq:" + messageID + ":" + requestID
	case messageID != "":
		return "msg:" + messageID
	case requestID != "":
		return "req:" + requestID
	}

	return "fp:" + hashStrings(
		ts.UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano),
		sessionID,
		fmt.Sprintf("%d", inputTokens),
		fmt.Sprintf("%d", outputTokens),
	)
}

func hashStrings(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
