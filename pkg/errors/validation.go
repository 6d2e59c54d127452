package errors

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

// ValidatePackageName validates a package name for safety and correctness.
// It rejects names that could be used for path traversal when the name
// becomes a directory under the package store.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path traversal sequences (.., //, etc.)
//   - Maximum length of 214 characters (the npm limit)
//   - npm name syntax, optionally scoped (@scope/name). Capitals are
//     allowed because older registry names such as "JSONStream" use them.
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > 214 {
		return New(ErrCodeInvalidPackage, "package name too long (max 214 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"//",   // Double slash
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidPackage, "package name contains invalid characters: %q", pattern)
		}
	}

	if !packageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid package name: %q", name)
	}

	return nil
}

// packageNameRegex matches npm-style package names, legacy mixed case included.
var packageNameRegex = regexp.MustCompile(`^(@[A-Za-z0-9-~][A-Za-z0-9-._~]*/)?[A-Za-z0-9-~][A-Za-z0-9-._~]*$`)

// versionRegex matches a literal version: dotted alphanumerics with
// optional prerelease and build suffixes.
var versionRegex = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z.+-]*$`)

// ValidateVersion checks that v is a literal version usable as a path suffix.
// Range expressions must be stripped before calling this.
func ValidateVersion(v string) error {
	if v == "" {
		return New(ErrCodeInvalidVersion, "version cannot be empty")
	}
	if strings.Contains(v, "..") || !versionRegex.MatchString(v) {
		return New(ErrCodeInvalidVersion, "invalid version: %q", v)
	}
	return nil
}

// ValidateArchivePath validates a path read from an archive entry.
// It prevents entries from escaping the extraction directory.
//
// Validation rules:
//   - Path cannot be empty
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No parent directory components after cleaning
//   - No backslashes (Windows-style paths)
func ValidateArchivePath(p string) error {
	if p == "" {
		return New(ErrCodeInvalidPath, "archive entry path cannot be empty")
	}

	for _, r := range p {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "archive entry %q contains invalid characters", p)
		}
	}

	if strings.HasPrefix(p, "/") {
		return New(ErrCodeInvalidPath, "archive entry %q must be relative", p)
	}

	if strings.Contains(p, "\\") {
		return New(ErrCodeInvalidPath, "archive entry %q cannot contain backslashes", p)
	}

	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return New(ErrCodeInvalidPath, "archive entry %q escapes the extraction directory", p)
	}

	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
