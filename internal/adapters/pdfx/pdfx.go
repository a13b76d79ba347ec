// Package pdfx implements a best-effort plain-text extractor for PDF
// estimate documents. It decompresses Flate content streams and pulls the
// literal strings out of text-show operators. That is enough for the
// machine-generated estimate PDFs the pipeline receives; scanned documents
// yield nothing, which the pipeline tolerates.
package pdfx

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"regexp"
	"strings"
)

// Extractor implements core.TextExtractor over raw PDF bytes.
type Extractor struct{}

// New creates a PDF text extractor.
func New() *Extractor { return &Extractor{} }

var (
	streamRe = regexp.MustCompile(`(?s)stream\r?\n(.*?)endstream`)
	textOpRe = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*Tj|\[((?:[^\[\]\\]|\\.)*)\]\s*TJ`)
	litRe    = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)
)

// ExtractText returns the text content of a PDF, with one line per text-show
// operation. Returns an error only when the input is not a PDF at all.
func (e *Extractor) ExtractText(pdf []byte) (string, error) {
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		return "", errors.New("not a PDF document")
	}

	var sb strings.Builder
	for _, m := range streamRe.FindAllSubmatch(pdf, -1) {
		content := inflate(m[1])
		if content == nil {
			content = m[1]
		}
		extractFromStream(content, &sb)
	}
	return strings.TrimSpace(sb.String()), nil
}

// inflate attempts zlib decompression, returning nil for streams that are
// not Flate-encoded.
func inflate(data []byte) []byte {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, 8<<20))
	if err != nil {
		return nil
	}
	return out
}

func extractFromStream(content []byte, sb *strings.Builder) {
	for _, m := range textOpRe.FindAllSubmatch(content, -1) {
		switch {
		case len(m[1]) > 0:
			sb.WriteString(decodeLiteral(string(m[1])))
			sb.WriteByte('\n')
		case len(m[2]) > 0:
			// TJ arrays interleave strings with kerning numbers.
			var line strings.Builder
			for _, lit := range litRe.FindAllSubmatch(m[2], -1) {
				line.WriteString(decodeLiteral(string(lit[1])))
			}
			if line.Len() > 0 {
				sb.WriteString(line.String())
				sb.WriteByte('\n')
			}
		}
	}
}

// decodeLiteral resolves PDF string escapes.
func decodeLiteral(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '(', ')', '\\':
			sb.WriteByte(s[i])
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
