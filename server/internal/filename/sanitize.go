package filename

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Longest name, in bytes, produced by Sanitize. Most filesystems cap a
// path component at 255 bytes.
const MaxLength = 200

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f]`)
	spaces       = regexp.MustCompile(`\s+`)

	reservedNames = map[string]struct{}{
		"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
		"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
		"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
	}
)

// Sanitize turns a proposed name into one that is valid on both POSIX and
// Windows filesystems. The extension, if any, is preserved.
func Sanitize(name string) string {
	name = strings.ToValidUTF8(name, "_")
	name = invalidChars.ReplaceAllString(name, "_")
	name = spaces.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	// windows silently drops trailing dots and spaces
	name = strings.TrimRight(name, ". ")
	name = strings.TrimLeft(name, " ")

	if name == "" {
		return "_"
	}

	stem, ext := splitExt(name)
	if _, ok := reservedNames[strings.ToUpper(stem)]; ok {
		stem = "_" + stem
	}

	if len(stem)+len(ext) > MaxLength {
		stem = truncate(stem, MaxLength-len(ext))
	}

	return stem + ext
}

func splitExt(name string) (string, string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	for len(s) > n {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}
