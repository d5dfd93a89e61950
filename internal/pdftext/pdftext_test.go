package pdftext

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a one page PDF whose content stream is content.
func buildPDF(content string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractText(t *testing.T) {
	data := buildPDF("BT /F1 12 Tf 72 720 Td (Jane   Doe) Tj T* (Senior Engineer at Acme) Tj ET")

	text, err := ExtractText(data)
	require.NoError(t, err)
	assert.Contains(t, text, "Jane Doe")
	assert.Contains(t, text, "Senior Engineer at Acme")
}

func TestExtractTextWithoutTextLayer(t *testing.T) {
	_, err := ExtractText(buildPDF("0 0 m 100 100 l S"))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtractTextRejectsNonPDF(t *testing.T) {
	_, err := ExtractText([]byte("PK\x03\x04 zip archive"))
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestExtractTextCorrupt(t *testing.T) {
	_, err := ExtractText([]byte("%PDF-1.4\ngarbage without xref"))
	assert.Error(t, err)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7")))
	assert.False(t, IsPDF([]byte("%PD")))
	assert.False(t, IsPDF(nil))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b\nc", normalize("  a \t b \r\n\n   \nc  "))
}
