package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	MaxTitleLen     = 200
	MaxUserNotesLen = 5000
	MaxTags         = 20
	MaxTagLen       = 50
)

var tagPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

var ErrEmptyTitle = errors.New("title cannot be empty or just whitespace")

// NormalizeTitle trims whitespace and validates length bounds.
func NormalizeTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", ErrEmptyTitle
	}
	if len(t) > MaxTitleLen {
		return "", fmt.Errorf("title exceeds %d characters", MaxTitleLen)
	}
	return t, nil
}

// NormalizeTags lowercases tags, drops empties and rejects malformed ones.
func NormalizeTags(tags []string) ([]string, error) {
	if len(tags) > MaxTags {
		return nil, fmt.Errorf("too many tags (max %d)", MaxTags)
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if len(t) > MaxTagLen {
			return nil, fmt.Errorf("tag %q is too long (max %d characters)", t[:20], MaxTagLen)
		}
		if !tagPattern.MatchString(t) {
			return nil, fmt.Errorf("tag %q contains invalid characters", t)
		}
		out = append(out, t)
	}
	return out, nil
}
