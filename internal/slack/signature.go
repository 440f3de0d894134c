package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Request signature verification (v0 scheme): the signature is
// hex(HMAC-SHA256(signingSecret, "v0:{timestamp}:{body}")) and the timestamp
// must be within a small skew window to blunt replay.

const (
	signatureVersion = "v0"
	signatureMaxSkew = 5 * time.Minute

	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"
)

// VerifySignature checks a request body against the signature and timestamp
// headers. now is injectable for tests.
func VerifySignature(signingSecret, body, timestamp, signature string, now time.Time) bool {
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)
	if signingSecret == "" || timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < -signatureMaxSkew || skew > signatureMaxSkew {
		return false
	}

	expected := Sign(signingSecret, body, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the v0 signature for a body and timestamp.
func Sign(signingSecret, body, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":" + body))
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}
