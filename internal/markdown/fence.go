package markdown

import (
	"bufio"
	"bytes"
	"strings"
)

// FenceIssue reports a code fence that never closes before end of input.
type FenceIssue struct {
	Line int    // opening fence line
	Info string // info string on the opening fence, may be empty
}

// UnclosedFences scans the raw source line by line and reports fences left
// open at end of input. CommonMark silently closes such fences at EOF, so the
// parser cannot see them; a doc that relies on that almost always has a
// missing ``` that swallows the rest of the file.
func UnclosedFences(src []byte) []FenceIssue {
	var issues []FenceIssue

	var (
		open     bool
		openChar byte
		openLen  int
		openAt   int
		openInfo string
	)

	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		marker, length, info, ok := fenceMarker(sc.Text())
		if !ok {
			continue
		}
		if !open {
			open = true
			openChar = marker
			openLen = length
			openAt = line
			openInfo = info
			continue
		}
		// A closing fence uses the same character, is at least as long,
		// and carries no info string.
		if marker == openChar && length >= openLen && info == "" {
			open = false
		}
	}
	if open {
		issues = append(issues, FenceIssue{Line: openAt, Info: openInfo})
	}
	return issues
}

// fenceMarker parses a line as a fence delimiter: up to three leading spaces,
// then a run of three or more backticks or tildes. Backtick fences reject
// info strings containing backticks, matching CommonMark.
func fenceMarker(line string) (marker byte, length int, info string, ok bool) {
	i := 0
	for i < len(line) && i < 3 && line[i] == ' ' {
		i++
	}
	if i >= len(line) {
		return 0, 0, "", false
	}
	c := line[i]
	if c != '`' && c != '~' {
		return 0, 0, "", false
	}
	n := 0
	for i < len(line) && line[i] == c {
		i++
		n++
	}
	if n < 3 {
		return 0, 0, "", false
	}
	rest := strings.TrimSpace(line[i:])
	if c == '`' && strings.ContainsRune(rest, '`') {
		return 0, 0, "", false
	}
	return c, n, rest, true
}
