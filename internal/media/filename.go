package media

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/IshaanNene/kitmanual/internal/catalog"
)

const (
	maxNameRunes = 80
	hostileChars = `\/:*?"<>|`
)

// SanitizeName makes a display name safe for use in a file name: hostile
// characters and control characters become separators, whitespace runs
// collapse to a single underscore, and the result is capped in length.
func SanitizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(hostileChars, r) || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, name)

	s := strings.Join(strings.Fields(cleaned), "_")
	if runes := []rune(s); len(runes) > maxNameRunes {
		s = string(runes[:maxNameRunes])
	}
	s = strings.Trim(s, "._")
	if s == "" {
		return "manual"
	}
	return s
}

// FileName returns "{id}-{sanitized name}.pdf" for rec.
func FileName(rec *catalog.Record) string {
	return fmt.Sprintf("%d-%s.pdf", rec.ID, SanitizeName(rec.DisplayName()))
}

// ExpectedPath returns the root-relative path a record's PDF is stored at.
func ExpectedPath(subdir string, rec *catalog.Record) string {
	return path.Join(strings.Trim(subdir, "/"), FileName(rec))
}
