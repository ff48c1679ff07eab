// Package extract pulls plain text out of uploaded files so they can be fingerprinted and searched.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/storage"
)

// MaxUploadSize is the largest file accepted for a note.
const MaxUploadSize = 50 << 20

const (
	MIMEPDF   = "application/pdf"
	MIMEDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEDOC   = "application/msword"
	MIMEText  = "text/plain"
	MIMEOctet = "application/octet-stream"
)

var allowedImages = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// ErrUnsupported is returned for files whose text cannot be extracted.
var ErrUnsupported = errors.New("unsupported file type")

// ImageTranscriber turns an image into text. llm.Guard implements it over the Gemini client.
type ImageTranscriber interface {
	DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Extractor extracts text from PDF, DOCX, plain text and image uploads.
type Extractor struct {
	images ImageTranscriber
}

// NewExtractor creates an Extractor. A nil transcriber makes images unsupported.
func NewExtractor(images ImageTranscriber) *Extractor {
	return &Extractor{images: images}
}

// DetectMIME returns the media type of data without parameters.
// The declared type wins unless it is empty or generic, in which case the content is sniffed.
func DetectMIME(data []byte, declared string) string {
	declared = baseType(declared)
	if declared != "" && declared != MIMEOctet {
		return declared
	}
	return baseType(mimetype.Detect(data).String())
}

// Allowed reports whether a file of this media type may be attached to a note.
func Allowed(mimeType string) bool {
	switch mimeType {
	case MIMEPDF, MIMEDOCX, MIMEDOC, MIMEText, MIMEOctet:
		return true
	}
	_, ok := allowedImages[mimeType]
	return ok
}

// NoteTypeFor maps a media type to the note type it creates.
func NoteTypeFor(mimeType string) storage.NoteType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return storage.NoteTypeImage
	case mimeType == MIMEPDF:
		return storage.NoteTypePDF
	default:
		return storage.NoteTypeText
	}
}

// Extract returns the text content of data. mimeType should come from DetectMIME.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var (
		text string
		err  error
	)
	switch {
	case mimeType == MIMEPDF:
		text, err = extractPDF(data)
	case mimeType == MIMEDOCX:
		text, err = extractDOCX(data)
	case mimeType == MIMEText:
		text = strings.ToValidUTF8(string(data), "")
	case strings.HasPrefix(mimeType, "image/"):
		if e.images == nil {
			return "", fmt.Errorf("%w: %s (no image transcriber configured)", ErrUnsupported, mimeType)
		}
		text, err = e.images.DescribeImage(ctx, data, mimeType)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mimeType)
	}
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", mimeType, err)
	}

	text = normalize(text)
	logger.DebugContext(ctx, "extracted text from upload",
		"mime_type", mimeType,
		"bytes", len(data),
		"chars", len(text),
	)
	return text, nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(make(map[string]*pdf.Font))
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// normalize trims every line and collapses runs of blank lines.
func normalize(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func baseType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
