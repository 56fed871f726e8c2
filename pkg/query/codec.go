package query

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Marker is the separator every canonical search string starts with.
const Marker = "?"

// Normalize returns search with a leading marker.
// The empty string normalizes to the bare marker.
func Normalize(search string) string {
	if search == "" {
		return Marker
	}
	if strings.HasPrefix(search, Marker) {
		return search
	}
	return Marker + search
}

// Decode parses a search string into a Raw mapping.
// Keys that occur once map to a single value; repeated keys map to a list
// in first-seen order. Each malformed percent-escape is kept literally and
// decoded bytes that are not valid UTF-8 become U+FFFD.
func Decode(search string) Raw {
	s := strings.TrimPrefix(Normalize(search), Marker)

	counts := make(map[string][]string)
	var order []string
	for s != "" {
		var pair string
		pair, s, _ = strings.Cut(s, "&")
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key := unescape(k)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key] = append(counts[key], unescape(v))
	}

	out := make(Raw, len(order))
	for _, key := range order {
		vals := counts[key]
		if len(vals) == 1 {
			out[key] = One(vals[0])
		} else {
			out[key] = Many(vals...)
		}
	}
	return out
}

// Encode serializes raw to its canonical search string.
// Keys are emitted in sorted order; list values emit one entry per element.
func Encode(raw Raw) string {
	var b strings.Builder
	b.WriteString(Marker)
	first := true
	for _, key := range raw.Keys() {
		for _, v := range raw[key].items() {
			if !first {
				b.WriteByte('&')
			}
			first = false
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// unescape decodes a form-urlencoded component one escape at a time:
// '+' is a space, "%XY" is a byte and anything else is kept as written.
func unescape(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '+':
			buf = append(buf, ' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
		default:
			buf = append(buf, c)
		}
	}
	if utf8.Valid(buf) {
		return string(buf)
	}

	var b strings.Builder
	b.Grow(len(buf) + 8)
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(utf8.RuneError)
		} else {
			b.Write(buf[:size])
		}
		buf = buf[size:]
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
