package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/poiesic/docreply/core"
)

// Recognizer turns image bytes into text. Client satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Mode selects how images are read.
type Mode string

const (
	// ModeOCR sends images to the OCR service.
	ModeOCR Mode = "ocr"
	// ModeTranscribe asks a vision chat model to read the image.
	ModeTranscribe Mode = "transcribe"
)

// Extractor turns uploaded files into plain text.
type Extractor struct {
	ocr       Recognizer
	vision    Recognizer
	pdftotext string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTranscriber enables ModeTranscribe for images.
func WithTranscriber(r Recognizer) Option {
	return func(e *Extractor) {
		e.vision = r
	}
}

// NewExtractor creates an extractor. ocr may be nil, in which case images
// are rejected in ModeOCR.
func NewExtractor(ocr Recognizer, opts ...Option) *Extractor {
	e := &Extractor{ocr: ocr, pdftotext: "pdftotext"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// KindOf maps a content type to a document kind.
func KindOf(mimeType string) (core.Kind, error) {
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch {
	case mimeType == "application/pdf":
		return core.KindPDF, nil
	case strings.HasPrefix(mimeType, "image/"):
		return core.KindImage, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, mimeType)
}

// Extract returns the text of a PDF or image together with its kind. Images
// go through OCR.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) (string, core.Kind, error) {
	return e.ExtractMode(ctx, data, mimeType, ModeOCR)
}

// ExtractMode is Extract with an explicit image mode. An empty mode means
// ModeOCR. PDFs ignore the mode.
func (e *Extractor) ExtractMode(ctx context.Context, data []byte, mimeType string, mode Mode) (string, core.Kind, error) {
	kind, err := KindOf(mimeType)
	if err != nil {
		return "", "", err
	}

	switch kind {
	case core.KindImage:
		r, err := e.recognizer(mode)
		if err != nil {
			return "", kind, err
		}
		text, err := r.Recognize(ctx, data, mimeType)
		return text, kind, err
	default:
		text, err := e.pdfText(ctx, data)
		return text, kind, err
	}
}

func (e *Extractor) recognizer(mode Mode) (Recognizer, error) {
	switch mode {
	case "", ModeOCR:
		if e.ocr == nil {
			return nil, ErrOCRUnavailable
		}
		return e.ocr, nil
	case ModeTranscribe:
		if e.vision == nil {
			return nil, ErrTranscriberUnavailable
		}
		return e.vision, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
}

// pdfText runs poppler's pdftotext over the document.
func (e *Extractor) pdfText(ctx context.Context, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "docreply-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.pdftotext, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: pdftotext: %v: %s", ErrExtractionFailed, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
