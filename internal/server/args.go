package server

import "strings"

// unhex maps a byte to its hex digit value, or -1.
var unhex = func() (t [256]int8) {
	for i := range t {
		t[i] = -1
	}
	for c := '0'; c <= '9'; c++ {
		t[c] = int8(c - '0')
	}
	for c := 'a'; c <= 'f'; c++ {
		t[c] = int8(c - 'a' + 10)
		t[c-'a'+'A'] = int8(c - 'a' + 10)
	}
	return t
}()

// lookupArg returns the value of name in an "a=1&b=2" string. The key must
// start the string or follow an '&'.
func lookupArg(data, name string) (string, bool) {
	key := name + "="
	var rest string
	switch {
	case strings.HasPrefix(data, key):
		rest = data[len(key):]
	default:
		i := strings.Index(data, "&"+key)
		if i < 0 {
			return "", false
		}
		rest = data[i+1+len(key):]
	}
	if end := strings.IndexByte(rest, '&'); end >= 0 {
		rest = rest[:end]
	}
	return percentDecode(rest)
}

// percentDecode expands %XY escapes. '+' is left alone.
func percentDecode(s string) (string, bool) {
	if strings.IndexByte(s, '%') < 0 {
		return s, true
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", false
		}
		hi, lo := unhex[s[i+1]], unhex[s[i+2]]
		if hi < 0 || lo < 0 {
			return "", false
		}
		b.WriteByte(byte(hi)<<4 | byte(lo))
		i += 2
	}
	return b.String(), true
}
