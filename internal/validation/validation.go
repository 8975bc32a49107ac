package validation

import (
	"errors"
	"net/url"
	"strings"
	"unicode"
)

// ErrNameEmpty is returned when the document name is empty or whitespace-only after trim.
var ErrNameEmpty = errors.New("document name is required")

// ErrNameTooLong is returned when the document name length exceeds the maximum.
var ErrNameTooLong = errors.New("document name too long")

// ErrNameInvalidChars is returned when the document name contains disallowed characters.
var ErrNameInvalidChars = errors.New("document name contains invalid characters")

// ErrNameTraversal is returned for absolute paths, dot segments and hidden segments.
var ErrNameTraversal = errors.New("document name must be a plain relative path")

// ValidateDocName trims the input and checks it names a document the API
// may serve: a slash-separated relative path of letters, digits, hyphen,
// underscore and dot, with no absolute prefix, no empty, dot or dot-dot
// segments, and no hidden segments. Returns the trimmed name or an error
// suitable for 400 INVALID_DOCUMENT responses.
func ValidateDocName(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrNameEmpty
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrNameTooLong
	}
	for _, c := range r {
		if !isAllowedNameRune(c) {
			return "", ErrNameInvalidChars
		}
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return "", ErrNameTraversal
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.HasPrefix(seg, ".") {
			return "", ErrNameTraversal
		}
	}
	return s, nil
}

// isAllowedNameRune returns true for letters (Unicode), digits, hyphen,
// underscore, dot and the path separator.
func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case '-', '_', '.', '/':
		return true
	}
	return false
}

// ErrURLEmpty is returned when the url query parameter is missing.
var ErrURLEmpty = errors.New("url is required")

// ErrURLInvalid is returned when the value does not parse as an absolute URL.
var ErrURLInvalid = errors.New("url is not a valid absolute URL")

// ErrURLScheme is returned for schemes other than http and https.
var ErrURLScheme = errors.New("url scheme must be http or https")

// ValidateLinkURL checks a link-history query value: an absolute http(s)
// URL with a host. Returns the trimmed URL or an error suitable for 400
// INVALID_URL responses.
func ValidateLinkURL(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrURLEmpty
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", ErrURLInvalid
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrURLScheme
	}
	return s, nil
}
