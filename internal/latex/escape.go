package latex

import (
	"regexp"
	"strings"
)

var escapes = map[rune]string{
	'\\': `\textbackslash{}`,
	'&':  `\&`,
	'%':  `\%`,
	'$':  `\$`,
	'#':  `\#`,
	'_':  `\_`,
	'{':  `\{`,
	'}':  `\}`,
	'~':  `\textasciitilde{}`,
	'^':  `\textasciicircum{}`,
}

// unescapes is ordered so the longer word commands are tried first.
var unescapes = []struct {
	seq string
	out string
}{
	{`\textbackslash{}`, `\`},
	{`\textasciitilde{}`, `~`},
	{`\textasciicircum{}`, `^`},
	{`\&`, `&`},
	{`\%`, `%`},
	{`\$`, `$`},
	{`\#`, `#`},
	{`\_`, `_`},
	{`\{`, `{`},
	{`\}`, `}`},
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Escape makes plain text safe to place in a LaTeX document.
func Escape(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if esc, ok := escapes[r]; ok {
			b.WriteString(esc)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Unescape is the inverse of Escape. Any other backslash sequence is copied
// through untouched.
func Unescape(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		if text[i] == '\\' {
			matched := false
			for _, u := range unescapes {
				if strings.HasPrefix(text[i:], u.seq) {
					b.WriteString(u.out)
					i += len(u.seq)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

// NormalizeText is the canonical form of edited letter text: unix newlines,
// single spaces, no blank-line runs, trimmed. Rendering a spliced body yields
// exactly this form.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return cleanup(text)
}

// escapeBody turns normalized plain text into body markup: blank lines stay
// paragraph breaks and single newlines become explicit \\ line breaks.
func escapeBody(text string) string {
	paragraphs := strings.Split(NormalizeText(text), "\n\n")
	for i, p := range paragraphs {
		lines := strings.Split(p, "\n")
		for j, line := range lines {
			line = Escape(line)
			// [ right after a line break would be read as a length argument
			if strings.HasPrefix(line, "[") {
				line = "{}" + line
			}
			lines[j] = line
		}
		paragraphs[i] = strings.Join(lines, "\\\\\n")
	}
	return strings.Join(paragraphs, "\n\n")
}

// cleanup collapses horizontal whitespace per line, trims every line and
// limits blank lines to one.
func cleanup(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
