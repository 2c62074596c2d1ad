package policy

import (
	"strings"
	"unicode"
)

// normalize lowercases and converts backslashes so patterns match regardless
// of case or separator style
func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, `\`, "/"))
}

// MatchPattern reports whether value matches pattern.
//
// Supported forms:
//   - no wildcard: exact match
//   - "*suffix": suffix match
//   - "prefix*": prefix match
//   - "*middle*": contains
//   - "a/**/b/**": pieces between "**" must appear in order, the first as a
//     prefix and the last as a suffix. A "*" in the final piece stays within
//     the last path segment, as in "C:/dev/**/bin/*.exe".
//
// Matching is case-insensitive and treats "\" and "/" alike.
func MatchPattern(pattern, value string) bool {
	p := normalize(pattern)
	v := normalize(value)

	if p == "" || v == "" {
		return false
	}

	if strings.Contains(p, "**") {
		return matchSegments(strings.Split(p, "**"), v)
	}

	leading := strings.HasPrefix(p, "*")
	trailing := strings.HasSuffix(p, "*")
	core := strings.Trim(p, "*")

	switch {
	case leading && trailing:
		return strings.Contains(v, core)
	case leading:
		return strings.HasSuffix(v, core)
	case trailing:
		return strings.HasPrefix(v, core)
	default:
		return v == p
	}
}

// matchSegments matches the pieces of a pattern split on "**".
// A "**" may stand for zero segments, so a piece boundary keeps its slash.
func matchSegments(pieces []string, v string) bool {
	first := pieces[0]
	last := pieces[len(pieces)-1]

	if !strings.HasPrefix(v, first) {
		return false
	}
	rest := v[len(first):]
	if strings.HasSuffix(first, "/") {
		rest = "/" + rest
	}

	for _, mid := range pieces[1 : len(pieces)-1] {
		if mid == "" || mid == "/" {
			continue
		}
		idx := strings.Index(rest, mid)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(mid):]
		if strings.HasSuffix(mid, "/") {
			rest = "/" + rest
		}
	}

	switch {
	case last == "" || last == "/":
		return true
	case strings.Contains(last, "*"):
		return matchLastSegment(last, rest)
	default:
		return strings.HasSuffix(rest, last)
	}
}

// matchLastSegment handles a final piece such as "/bin/*.exe": the directory
// part must end the remaining path and the "*" stays inside the last segment
func matchLastSegment(last, rest string) bool {
	star := strings.Index(last, "*")
	head, tail := last[:star], strings.TrimPrefix(last[star+1:], "*")

	slash := strings.LastIndex(head, "/")
	dirHead, segHead := head[:slash+1], head[slash+1:]

	segment := rest[strings.LastIndex(rest, "/")+1:]
	dir := rest[:len(rest)-len(segment)]

	return strings.HasSuffix(dir, dirHead) &&
		len(segment) >= len(segHead)+len(tail) &&
		strings.HasPrefix(segment, segHead) &&
		strings.HasSuffix(segment, tail)
}

// ValidatePath reports whether path is an absolute drive-letter path with no
// parent-directory traversal and no UNC prefix. It performs no I/O.
func ValidatePath(path string) bool {
	if path == "" || strings.ContainsRune(path, 0) {
		return false
	}
	for _, seg := range strings.FieldsFunc(path, isSeparator) {
		if isTraversal(seg) {
			return false
		}
	}
	if strings.HasPrefix(path, `\\`) || strings.HasPrefix(path, "//") {
		return false
	}

	if len(path) < 3 {
		return false
	}
	drive := rune(path[0])
	if drive > unicode.MaxASCII || !unicode.IsLetter(drive) {
		return false
	}
	return path[1] == ':' && (path[2] == '\\' || path[2] == '/')
}

func isSeparator(r rune) bool {
	return r == '\\' || r == '/'
}

// isTraversal reports a parent-directory segment. Windows drops trailing dots
// and spaces from a segment, so "..." and ".. " count as well.
func isTraversal(seg string) bool {
	trimmed := strings.TrimRight(seg, " ")
	return len(trimmed) >= 2 && strings.Trim(trimmed, ".") == ""
}
