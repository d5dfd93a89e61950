package latex

import (
	"strings"
	"time"
)

// now backs \today.
var now = time.Now

const (
	dateLayout    = "January 2, 2006"
	maxMacroDepth = 8
)

// unwrapped commands render their single argument.
var unwrapped = map[string]bool{
	"textbf": true, "textit": true, "emph": true, "underline": true, "uline": true,
	"textsc": true, "texttt": true, "textrm": true, "textsf": true, "textup": true,
	"textmd": true, "textsl": true, "mbox": true, "url": true, "section": true,
	"subsection": true, "paragraph": true, "centerline": true, "signature": true,
}

// dropped commands are removed with the given number of mandatory arguments.
var dropped = map[string]int{
	"vspace": 1, "hspace": 1, "begin": 1, "end": 1, "label": 1, "color": 1,
	"documentclass": 1, "usepackage": 1, "pagestyle": 1, "thispagestyle": 1,
	"geometry": 1, "hypersetup": 1, "includegraphics": 1, "setlength": 2,
	"fontsize": 2, "definecolor": 3, "setcounter": 2, "addtolength": 2,
}

// declarations take no argument and produce no text.
var declarations = map[string]bool{
	"tiny": true, "scriptsize": true, "footnotesize": true, "small": true,
	"normalsize": true, "large": true, "Large": true, "LARGE": true, "huge": true,
	"Huge": true, "noindent": true, "indent": true, "par": true, "centering": true,
	"raggedright": true, "raggedleft": true, "bfseries": true, "em": true, "itshape": true,
	"mdseries": true, "normalfont": true, "selectfont": true, "smallskip": true,
	"medskip": true, "bigskip": true, "maketitle": true, "clearpage": true,
	"newpage": true, "pagebreak": true, "nopagebreak": true, "sloppy": true,
}

var literals = map[string]string{
	"textbackslash":   `\`,
	"textasciitilde":  "~",
	"textasciicircum": "^",
	"textendash":      "–",
	"textemdash":      "—",
	"ldots":           "...",
	"dots":            "...",
	"textbullet":      "•",
	"LaTeX":           "LaTeX",
	"TeX":             "TeX",
	"newline":         "\n",
	"linebreak":       "\n",
	"hfill":           " ",
	"quad":            " ",
	"qquad":           " ",
}

type renderer struct {
	defs map[string]string
	now  func() time.Time
}

func newRenderer(defs map[string]string) *renderer {
	return &renderer{defs: defs, now: now}
}

// plain renders a LaTeX fragment and normalizes its whitespace.
func (r *renderer) plain(fragment string) string {
	return cleanup(r.render(stripComments(fragment), 0))
}

func (r *renderer) render(s string, depth int) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case '\\':
			i = r.command(&b, s, i, depth)
		case '{', '}', '$', '\r':
			i++
		case '~':
			b.WriteByte(' ')
			i++
		case '\n':
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\r') {
				j++
			}
			if j < len(s) && s[j] == '\n' {
				b.WriteString("\n\n")
				i = skipSpaces(s, j)
				continue
			}
			// a single source newline is an inter-word space
			b.WriteByte(' ')
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// command renders the control sequence starting at s[i] and returns the index
// just past everything it consumed.
func (r *renderer) command(b *strings.Builder, s string, i, depth int) int {
	j := i + 1
	if j >= len(s) {
		return j
	}

	if c := s[j]; !isLetter(c) {
		switch c {
		case '\\':
			b.WriteByte('\n')
			k := j + 1
			if k < len(s) && s[k] == '*' {
				k++
			}
			return skipOptional(s, k)
		case '&', '%', '$', '#', '_', '{', '}':
			b.WriteByte(c)
		case ' ', ',', ';', ':', '\n':
			b.WriteByte(' ')
		case '!', '-', '/', '\'', '`', '"', '^', '~', '=', '.':
			// accents and hints; the accented letter follows as plain text
		default:
			b.WriteByte(c)
		}
		return j + 1
	}

	k := j
	for k < len(s) && isLetter(s[k]) {
		k++
	}
	name := s[j:k]
	if k < len(s) && s[k] == '*' {
		k++
	}

	switch {
	case name == "today":
		b.WriteString(r.now().Format(dateLayout))
		return skipEmptyGroup(s, k)

	case name == "newcommand" || name == "renewcommand" || name == "providecommand":
		_, _, next, _ := readDefinition(s, k)
		return next

	case name == "href":
		_, next, ok := readGroup(s, skipSpaces(s, k))
		if !ok {
			return k
		}
		text, after, ok := readGroup(s, skipSpaces(s, next))
		if !ok {
			return next
		}
		b.WriteString(r.render(text, depth))
		return after

	case name == "textcolor":
		_, next, ok := readGroup(s, skipSpaces(s, k))
		if !ok {
			return k
		}
		text, after, ok := readGroup(s, skipSpaces(s, next))
		if !ok {
			return next
		}
		b.WriteString(r.render(text, depth))
		return after

	case name == "item":
		b.WriteString("\n- ")
		return skipSpaces(s, skipOptional(s, k))

	case unwrapped[name]:
		arg, next, ok := readGroup(s, skipSpaces(s, skipOptional(s, k)))
		if !ok {
			return k
		}
		b.WriteString(r.render(arg, depth))
		return next

	case dropped[name] > 0:
		k = skipOptional(s, k)
		for n := 0; n < dropped[name]; n++ {
			_, next, ok := readGroup(s, skipSpaces(s, k))
			if !ok {
				break
			}
			k = next
		}
		return k

	case declarations[name]:
		return skipSpaces(s, k)
	}

	if lit, ok := literals[name]; ok {
		b.WriteString(lit)
		return skipEmptyGroup(s, k)
	}

	if def, ok := r.defs[name]; ok {
		if depth < maxMacroDepth {
			b.WriteString(r.render(def, depth+1))
		}
		return skipEmptyGroup(s, k)
	}

	// unknown command: keep the text of a directly attached argument
	if arg, next, ok := readGroup(s, skipOptional(s, k)); ok {
		b.WriteString(r.render(arg, depth))
		return next
	}
	return k
}

// RenderPlainText converts a whole LaTeX document into readable plain text.
// It never fails; unrecognized markup is dropped.
func RenderPlainText(doc string) string {
	r := newRenderer(definitions(doc))

	content := stripComments(doc)
	if start := strings.Index(content, `\begin{document}`); start >= 0 {
		content = content[start+len(`\begin{document}`):]
		if end := strings.Index(content, `\end{document}`); end >= 0 {
			content = content[:end]
		}
	}
	return cleanup(r.render(content, 0))
}
