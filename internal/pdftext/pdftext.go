// Package pdftext pulls plain text out of uploaded resume PDFs.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrNotPDF = errors.New("file is not a PDF")
	// ErrNoText is returned for PDFs without a text layer, typically scans.
	ErrNoText = errors.New("no extractable text in PDF")
)

var magic = []byte("%PDF")

// IsPDF checks the file signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// ExtractText returns the text of every page with whitespace runs collapsed
// and line structure kept.
func ExtractText(data []byte) (text string, err error) {
	if !IsPDF(data) {
		return "", ErrNotPDF
	}
	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract PDF text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}

	text = normalize(string(raw))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func normalize(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
