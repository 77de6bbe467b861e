package utils

import (
	"strings"
	"unicode"
)

// SanitizeHeaderFilename keeps a name safe for a quoted Content-Disposition
// filename: no control characters, quotes, backslashes or directories.
func SanitizeHeaderFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' {
			return -1
		}
		return r
	}, name)
	clean = strings.TrimSpace(clean)
	if clean == "" || clean == "." || clean == ".." {
		return "download"
	}
	return clean
}
