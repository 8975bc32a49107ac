package probe

import (
	"io"

	"golang.org/x/net/html"
)

// fragmentInBody reports whether the HTML stream contains an element the
// fragment can target: a matching id, a named <a>, or GitHub's
// "user-content-" prefixed form of either. Reading stops at maxFragmentBody
// or as soon as a match is found.
func fragmentInBody(body io.Reader, fragment string) (bool, error) {
	want := map[string]struct{}{
		fragment:                   {},
		"user-content-" + fragment: {},
	}

	tz := html.NewTokenizer(io.LimitReader(body, maxFragmentBody))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			if err := tz.Err(); err != io.EOF {
				return false, err
			}
			return false, nil
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := tz.TagName()
		isAnchor := len(name) == 1 && name[0] == 'a'
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = tz.TagAttr()
			switch string(key) {
			case "id":
				if _, ok := want[string(val)]; ok {
					return true, nil
				}
			case "name":
				if !isAnchor {
					continue
				}
				if _, ok := want[string(val)]; ok {
					return true, nil
				}
			}
		}
	}
}
