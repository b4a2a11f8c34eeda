package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// CameraIDRegex validates camera ID format.
var CameraIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateCameraID validates a camera ID.
func ValidateCameraID(cameraID string) error {
	if cameraID == "" {
		return fmt.Errorf("camera ID is required")
	}
	if len(cameraID) > 100 {
		return fmt.Errorf("camera ID is too long (max 100 characters)")
	}
	if !CameraIDRegex.MatchString(cameraID) {
		return fmt.Errorf("invalid camera ID format (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateURL checks that urlStr parses and uses one of the allowed
// schemes. With no schemes given, http, https, ws and wss all pass.
func ValidateURL(urlStr string, schemes ...string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	if len(schemes) == 0 {
		schemes = []string{"http", "https", "ws", "wss"}
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("invalid URL scheme %q (must be %s)", u.Scheme, strings.Join(schemes, " or "))
}

// ValidateQuality validates an explicit quality level.
func ValidateQuality(quality string) error {
	switch quality {
	case "low", "medium", "high":
		return nil
	default:
		return fmt.Errorf("invalid quality level (must be low, medium, or high)")
	}
}

// ValidateNonEmptyString validates that a string is not empty after trimming.
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
