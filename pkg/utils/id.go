package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateRunID generates a run ID with a timestamp prefix, e.g.
// run-20250102-150405-1a2b3c4d.
func GenerateRunID() string {
	timestamp := time.Now().Format("20060102-150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("run-%s-%s", timestamp, suffix)
}

// ValidateRunID rejects caller-supplied IDs that cannot be used in URL paths.
func ValidateRunID(id string) error {
	if strings.ContainsAny(id, "/:?# ") {
		return fmt.Errorf("run id %q cannot contain '/', ':', '?', '#' or spaces", id)
	}
	return nil
}
