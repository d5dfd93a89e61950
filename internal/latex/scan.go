package latex

import "strings"

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// skipSpaces returns the first index at or after i that is not whitespace.
func skipSpaces(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

// readGroup reads a brace-balanced {...} group starting at s[i]. Escaped
// braces do not count towards the nesting depth.
func readGroup(s string, i int) (content string, next int, ok bool) {
	if i >= len(s) || s[i] != '{' {
		return "", i, false
	}
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[i+1 : j], j + 1, true
			}
		}
	}
	return "", i, false
}

// skipOptional skips a [...] argument that starts exactly at s[i].
func skipOptional(s string, i int) int {
	if i >= len(s) || s[i] != '[' {
		return i
	}
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return i
}

func skipEmptyGroup(s string, i int) int {
	if strings.HasPrefix(s[i:], "{}") {
		return i + 2
	}
	return i
}

// stripComments removes every unescaped % up to and including the end of its
// line, matching how TeX reads source.
func stripComments(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
			continue
		}
		if c == '%' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// readDefinition parses the name and value of a \newcommand that ends at s[i].
// Macros that take arguments are reported with ok=false but still skipped.
func readDefinition(s string, i int) (name, value string, next int, ok bool) {
	i = skipSpaces(s, i)
	if i < len(s) && s[i] == '*' {
		i = skipSpaces(s, i+1)
	}
	switch {
	case i < len(s) && s[i] == '{':
		group, after, found := readGroup(s, i)
		if !found {
			return "", "", i, false
		}
		name = strings.TrimPrefix(strings.TrimSpace(group), `\`)
		i = after
	case i < len(s) && s[i] == '\\':
		j := i + 1
		for j < len(s) && isLetter(s[j]) {
			j++
		}
		name = s[i+1 : j]
		i = j
	default:
		return "", "", i, false
	}

	i = skipSpaces(s, i)
	hasArgs := i < len(s) && s[i] == '['
	for i < len(s) && s[i] == '[' {
		i = skipSpaces(s, skipOptional(s, i))
	}

	value, next, found := readGroup(s, i)
	if !found {
		return "", "", i, false
	}
	return name, value, next, !hasArgs && name != ""
}

var definers = []string{`\newcommand`, `\renewcommand`, `\providecommand`}

// definitions collects argument-free macro definitions. Later definitions
// override earlier ones.
func definitions(doc string) map[string]string {
	s := stripComments(doc)
	defs := make(map[string]string)
	for i := 0; i < len(s); {
		idx := strings.IndexByte(s[i:], '\\')
		if idx < 0 {
			break
		}
		i += idx
		matched := false
		for _, d := range definers {
			if strings.HasPrefix(s[i:], d) {
				end := i + len(d)
				if end < len(s) && isLetter(s[end]) {
					continue
				}
				name, value, next, ok := readDefinition(s, end)
				if ok {
					defs[name] = value
				}
				if next > i {
					i = next
				} else {
					i = end
				}
				matched = true
				break
			}
		}
		if !matched {
			i += 2
		}
	}
	return defs
}
