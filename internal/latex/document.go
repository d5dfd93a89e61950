// Package latex reads and edits the cover letter LaTeX produced by the
// generator: field macros, the editable body between the greeting and the
// closing spacer, and a plain-text rendering for previews.
package latex

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Marker names a structural anchor in a letter template.
type Marker string

const (
	MarkerGreeting Marker = "greeting"
	MarkerSentinel Marker = `\vspace{2.0em}`
)

var ErrMarkerNotFound = errors.New("template marker not found")

type ParseError struct {
	Marker Marker
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("latex: %s marker not found", e.Marker)
}

func (e *ParseError) Unwrap() error { return ErrMarkerNotFound }

var greetingLine = regexp.MustCompile(`(?i)^(?:\\noindent\s*)?(?:dear\b|to whom it may concern)`)

// Field macro names defined in the letter preamble.
const (
	MacroRecipient = "recipientName"
	MacroCompany   = "targetCompany"
	MacroPosition  = "targetPosition"
	MacroSubject   = "targetSubject"
)

type Fields struct {
	Recipient string `json:"recipientName"`
	Company   string `json:"targetCompany"`
	Position  string `json:"targetPosition"`
	Subject   string `json:"targetSubject"`
}

// ExtractFields reads the field macros as plain text. Missing macros yield
// empty strings.
func ExtractFields(doc string) Fields {
	defs := definitions(doc)
	r := newRenderer(defs)
	field := func(name string) string {
		v, ok := defs[name]
		if !ok {
			return ""
		}
		return r.plain(v)
	}
	return Fields{
		Recipient: field(MacroRecipient),
		Company:   field(MacroCompany),
		Position:  field(MacroPosition),
		Subject:   field(MacroSubject),
	}
}

// Document is a parsed letter. The body is src[bodyStart:bodyEnd]; everything
// around it is preserved verbatim on splice.
type Document struct {
	src       string
	bodyStart int
	bodyEnd   int
}

// Parse locates the greeting line and the spacer that closes the body.
func Parse(doc string) (*Document, error) {
	searchFrom := 0
	if idx := strings.Index(doc, `\begin{document}`); idx >= 0 {
		searchFrom = idx + len(`\begin{document}`)
	}

	bodyStart := -1
	for pos := searchFrom; pos < len(doc); {
		end := strings.IndexByte(doc[pos:], '\n')
		lineEnd := len(doc)
		if end >= 0 {
			lineEnd = pos + end
		}
		line := strings.TrimSpace(doc[pos:lineEnd])
		if !strings.HasPrefix(line, "%") && greetingLine.MatchString(line) {
			bodyStart = lineEnd
			if lineEnd < len(doc) {
				bodyStart++
			}
			break
		}
		pos = lineEnd + 1
	}
	if bodyStart < 0 {
		return nil, &ParseError{Marker: MarkerGreeting}
	}

	idx := strings.Index(doc[bodyStart:], string(MarkerSentinel))
	if idx < 0 {
		return nil, &ParseError{Marker: MarkerSentinel}
	}

	return &Document{src: doc, bodyStart: bodyStart, bodyEnd: bodyStart + idx}, nil
}

func (d *Document) Source() string { return d.src }

// Body returns the raw LaTeX between the greeting and the spacer.
func (d *Document) Body() string { return d.src[d.bodyStart:d.bodyEnd] }

func (d *Document) Fields() Fields { return ExtractFields(d.src) }

// PlainBody renders the body as plain text, resolving the document's macros.
func (d *Document) PlainBody() string {
	return newRenderer(definitions(d.src)).plain(d.Body())
}

// SpliceBody replaces the body with escaped plain text. Bytes outside the
// body are unchanged.
func (d *Document) SpliceBody(text string) string {
	var b strings.Builder
	b.Grow(len(d.src) + len(text))
	b.WriteString(d.src[:d.bodyStart])
	b.WriteString("\n")
	b.WriteString(escapeBody(text))
	b.WriteString("\n\n")
	b.WriteString(d.src[d.bodyEnd:])
	return b.String()
}

// SpliceBody parses doc and replaces its body with text.
func SpliceBody(doc, text string) (string, error) {
	d, err := Parse(doc)
	if err != nil {
		return "", err
	}
	return d.SpliceBody(text), nil
}

// LetterPreview is what the editor shows for a generated letter.
type LetterPreview struct {
	Fields
	Body     string `json:"body"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// Preview never fails: when the template cannot be parsed the whole document
// is rendered as plain text and the preview is marked degraded.
func Preview(doc string) LetterPreview {
	p := LetterPreview{Fields: ExtractFields(doc)}
	d, err := Parse(doc)
	if err != nil {
		p.Body = RenderPlainText(doc)
		p.Degraded = true
		p.Reason = err.Error()
		return p
	}
	p.Body = d.PlainBody()
	return p
}
