package router

import (
	"bytes"
	"encoding/base64"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// readPDFText extracts the embedded text layer of a PDF using
// github.com/ledongthuc/pdf (a pure-Go PDF reader; no pack example carries
// a PDF library, so this dependency is named rather than grounded — see
// DESIGN.md). hasImages is a coarse proxy for "this PDF is scanned": a
// page reporting content but yielding near-empty text strongly suggests an
// image-only page, since ledongthuc/pdf does not expose a resource
// dictionary walk to detect embedded images directly.
func readPDFText(data []byte) (text string, pageCount int, hasImages bool, err error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, false, err
	}

	pageCount = reader.NumPage()
	var buf bytes.Buffer
	emptyPages := 0
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			emptyPages++
		}
		buf.WriteString(pageText)
		buf.WriteString("\n")
	}

	// A page with no extractable text but a non-trivial byte size is most
	// likely image-backed content rather than a blank page.
	hasImages = pageCount > 0 && emptyPages == pageCount

	return buf.String(), pageCount, hasImages, nil
}

// isEncryptedPDFErr reports whether err indicates the PDF requires a
// password ledongthuc/pdf was not given.
func isEncryptedPDFErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypt") || strings.Contains(msg, "password")
}

func isPDF(mimeType string, data []byte) bool {
	if strings.EqualFold(mimeType, "application/pdf") {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

func isImage(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg", "image/png", "image/tiff", "image/webp", "image/bmp":
		return true
	default:
		return false
	}
}

// printableRatio is the fraction of text's runes that are printable,
// non-control characters (spec.md §4.7's "printable-ratio" accept gate).
func printableRatio(text string) float64 {
	if text == "" {
		return 0
	}
	total := 0
	printable := 0
	for _, r := range text {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(printable) / float64(total)
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
