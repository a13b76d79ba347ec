package pdfx

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pdfWithStream(t *testing.T, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	fmt.Fprintf(&buf, "1 0 obj\n<< /Length %d >>\nstream\n", len(content))
	buf.Write(content)
	buf.WriteString("endstream\nendobj\n%%EOF")
	return buf.Bytes()
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractTjOperators(t *testing.T) {
	content := []byte("BT /F1 12 Tf (Xactimate Estimate) Tj (Line 1: Remove laminated shingles) Tj ET")
	text, err := New().ExtractText(pdfWithStream(t, content))
	require.NoError(t, err)
	assert.Contains(t, text, "Xactimate Estimate")
	assert.Contains(t, text, "Remove laminated shingles")
}

func TestExtractTJArrays(t *testing.T) {
	content := []byte("BT [(RCV: )-250($18,)15(500.00)] TJ ET")
	text, err := New().ExtractText(pdfWithStream(t, content))
	require.NoError(t, err)
	assert.Contains(t, text, "RCV: $18,500.00")
}

func TestExtractCompressedStream(t *testing.T) {
	raw := []byte("BT (Drip edge: 120 LF @ $2.50) Tj ET")
	text, err := New().ExtractText(pdfWithStream(t, deflate(t, raw)))
	require.NoError(t, err)
	assert.Contains(t, text, "Drip edge: 120 LF @ $2.50")
}

func TestEscapedParens(t *testing.T) {
	content := []byte(`BT (O&P \(10/10\)) Tj ET`)
	text, err := New().ExtractText(pdfWithStream(t, content))
	require.NoError(t, err)
	assert.Contains(t, text, "O&P (10/10)")
}

func TestRejectsNonPDF(t *testing.T) {
	_, err := New().ExtractText([]byte("hello world"))
	require.Error(t, err)
}

func TestScannedPDFYieldsEmpty(t *testing.T) {
	// Image-only stream: no text operators.
	text, err := New().ExtractText(pdfWithStream(t, []byte{0x01, 0x02, 0x03}))
	require.NoError(t, err)
	assert.Empty(t, text)
}
