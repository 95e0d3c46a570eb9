package a2a

import (
	"strings"

	"github.com/google/uuid"
)

// matchPattern reports whether pattern matches a message type. pattern is
// either an exact type, the wildcard "*", or a prefix wildcard
// "prefix.*".
func matchPattern(pattern, msgType string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(msgType, prefix)
	}
	return pattern == msgType
}

func newSubID() string {
	return uuid.NewString()
}
