package storage

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidFilename is returned when nothing usable is left of a client
// supplied filename.
var ErrInvalidFilename = errors.New("invalid filename")

var windowsDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM0": true, "COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT0": true, "LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SecureFilename reduces a client filename to a flat ASCII name that is safe
// to join onto the upload folder: accents are folded, path separators and
// whitespace runs become "_", anything outside [A-Za-z0-9_.-] is dropped and
// leading or trailing dots and underscores are trimmed. Windows device names
// get a "_" prefix. "../../etc/passwd" becomes "etc_passwd".
func SecureFilename(name string) (string, error) {
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r > unicode.MaxASCII {
			continue
		}
		if r == '/' || r == '\\' {
			r = ' '
		}
		ascii.WriteRune(r)
	}

	joined := strings.Join(strings.Fields(ascii.String()), "_")

	var b strings.Builder
	for _, r := range joined {
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		}
	}

	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" {
		return "", ErrInvalidFilename
	}

	stem, _, _ := strings.Cut(cleaned, ".")
	if windowsDeviceNames[strings.ToUpper(stem)] {
		cleaned = "_" + cleaned
	}
	return cleaned, nil
}

func isAllowedNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '-':
		return true
	default:
		return false
	}
}
