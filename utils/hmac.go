package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	SignatureTimestampHeader = "X-Director-Timestamp"
	SignatureHeader          = "X-Director-Signature"
)

// EmptyBodyHash is the SHA256 hash of an empty body
const EmptyBodyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// BuildStringToSign constructs the canonical string signed for fleet requests.
// Format: METHOD\nPATH\nTIMESTAMP\nSHA256(body)
func BuildStringToSign(method, path string, timestamp int64, bodyHash string) string {
	return fmt.Sprintf("%s\n%s\n%d\n%s", method, path, timestamp, bodyHash)
}

// ComputeHMACSHA256 returns the hex-encoded HMAC-SHA256 of message.
func ComputeHMACSHA256(secretKey, message string) string {
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// HashBodySHA256 returns the hex SHA256 of body, or EmptyBodyHash for no body.
func HashBodySHA256(body []byte) string {
	if len(body) == 0 {
		return EmptyBodyHash
	}
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

// SignRequest returns the timestamp and signature headers for a fleet request.
func SignRequest(secretKey, method, path string, timestamp int64, body []byte) map[string]string {
	stringToSign := BuildStringToSign(method, path, timestamp, HashBodySHA256(body))
	return map[string]string{
		SignatureTimestampHeader: strconv.FormatInt(timestamp, 10),
		SignatureHeader:          ComputeHMACSHA256(secretKey, stringToSign),
	}
}
