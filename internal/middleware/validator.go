package middleware

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	idPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	typePattern = regexp.MustCompile(`^[\p{L}\p{N} ._/()-]{1,128}$`)
)

// allowed upload types for exam files
var examContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"text/plain":      true,
}

// ValidateUserID validates user id format
func ValidateUserID(user string) error {
	if user == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if !idPattern.MatchString(user) {
		return fmt.Errorf("invalid user ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateID validates exam and insight ids (uuids or short slugs)
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s ID cannot be empty", kind)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid %s ID format", kind)
	}
	return nil
}

// ValidateExamType accepts free text such as "Blood Test" or "Cardíaco"
func ValidateExamType(t string) error {
	if !typePattern.MatchString(strings.TrimSpace(t)) {
		return fmt.Errorf("invalid exam type")
	}
	return nil
}

// ValidateExamDate accepts RFC 3339 or a plain YYYY-MM-DD. Empty means unset.
func ValidateExamDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC 3339)", s)
	}
	return t, nil
}

// ValidateFilename blocks traversal and control characters in upload names
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "\x00\r\n") {
		return fmt.Errorf("invalid characters in filename")
	}
	if filepath.Base(name) != name {
		return fmt.Errorf("filename must not contain a path")
	}
	return nil
}

// ValidateContentType checks the declared type of an exam upload
func ValidateContentType(ct string) error {
	base := strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	if !examContentTypes[strings.ToLower(base)] {
		return fmt.Errorf("unsupported content type %q (allowed: pdf, jpeg, png, plain text)", ct)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
