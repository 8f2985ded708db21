package extract

import "errors"

var (
	// ErrExtractionFailed is returned when a file cannot be turned into text.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrUnsupportedType is returned for content types other than PDF and images.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrUnrecognizedResponse is returned when the OCR reply matches no known shape.
	ErrUnrecognizedResponse = errors.New("unrecognized OCR response")

	// ErrOCRUnavailable is returned for images when no OCR client is configured.
	ErrOCRUnavailable = errors.New("OCR is not configured")

	// ErrTranscriberUnavailable is returned for transcribe mode when no vision
	// model is configured.
	ErrTranscriberUnavailable = errors.New("image transcription is not configured")

	// ErrUnsupportedMode is returned for an unknown processing mode.
	ErrUnsupportedMode = errors.New("unsupported processing mode")

	// ErrAPIKeyRequired is returned when the OCR client has no API key.
	ErrAPIKeyRequired = errors.New("OCR API key required")
)
