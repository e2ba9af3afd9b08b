// File path: internal/repo/types.go
package repo

import (
	"fmt"
	"regexp"
	"strings"
)

// File is a single repository file as returned by the fetching collaborator.
// Files are immutable once fetched.
type File struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// Metadata describes the repository a fetch resolved.
type Metadata struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
	Stars         int    `json:"stars,omitempty"`
	Language      string `json:"language,omitempty"`
}

// urlPatterns is the ordered list of accepted repository references. The
// first pattern that matches wins.
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://github\.com/([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`),
	regexp.MustCompile(`^github\.com/([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`),
	regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9_.-]*)/([A-Za-z0-9][A-Za-z0-9_.-]*)$`),
}

// ParseURL extracts the owner and repository name from a GitHub URL or an
// owner/repo shorthand. It fails when no pattern matches.
func ParseURL(raw string) (owner, name string, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", fmt.Errorf("repository url required")
	}
	for _, pattern := range urlPatterns {
		if m := pattern.FindStringSubmatch(trimmed); m != nil {
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("unrecognized repository url: %q", raw)
}

// ID returns the canonical owner/name identifier for a repository.
func ID(owner, name string) string {
	return strings.TrimSpace(owner) + "/" + strings.TrimSpace(name)
}

// NormalizeID maps a repository identifier to a collection-safe name:
// lowercase, every non-alphanumeric rune replaced by '-', trimmed.
func NormalizeID(repoID string) string {
	trimmed := strings.TrimSpace(repoID)
	if trimmed == "" {
		return "repository"
	}
	var builder strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(r + 32)
		default:
			builder.WriteRune('-')
		}
	}
	normalized := strings.Trim(builder.String(), "-")
	if normalized == "" {
		return "repository"
	}
	return normalized
}
