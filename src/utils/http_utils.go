package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/username/tradeclean/src/logger"
)

// GenerateETag creates a SHA256 hash of the JSON representation of the data.
// Returns the ETag string (hex-encoded hash) and any error during JSON marshaling.
func GenerateETag(data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data for ETag generation: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// ETagMatches reports whether any entity tag in an If-None-Match header
// equals quotedETag.
func ETagMatches(ifNoneMatch, quotedETag string) bool {
	for _, tag := range strings.Split(ifNoneMatch, ",") {
		tag = strings.TrimSpace(tag)
		if tag == quotedETag || tag == "*" {
			return true
		}
	}
	return false
}

// SendJSONError writes {"error": message} with the given status.
func SendJSONError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	logger.FromContext(r.Context()).Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	render.Status(r, statusCode)
	render.JSON(w, r, map[string]string{"error": message})
}
