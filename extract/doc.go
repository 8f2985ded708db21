// Package extract turns uploaded PDFs and images into plain text.
//
// PDFs go through poppler's pdftotext. Images go either to an OCR service,
// whose replies come in several JSON shapes that ParseOCRResponse classifies
// into one OCRResult variant, or to a vision chat model (ModeTranscribe).
package extract
