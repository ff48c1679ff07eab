package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// extractDOCX reads the paragraphs of word/document.xml.
func extractDOCX(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}

	for _, f := range archive.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", docxBody, err)
		}
		defer func() {
			_ = rc.Close()
		}()
		return documentText(rc)
	}
	return "", fmt.Errorf("docx archive has no %s", docxBody)
}

// documentText collects w:t runs, ending a line at every w:p and honoring w:tab and w:br.
func documentText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var (
		sb     strings.Builder
		inText bool
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
