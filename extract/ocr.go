package extract

import (
	"encoding/json"
	"strings"
)

// OCRResult is one of the reply shapes an OCR service is known to produce:
// TextResponse, PagesResponse, BlocksResponse or UnrecognizedResponse.
type OCRResult interface {
	// Text flattens the result into plain text.
	Text() string
	ocrResult()
}

// TextResponse carries the whole document as a single string.
type TextResponse struct {
	Content string
}

// Page is one page of a PagesResponse. Providers fill exactly one of the
// fields; Markdown wins when several are present.
type Page struct {
	Markdown   string
	Lines      []string
	Paragraphs []string
}

// PagesResponse carries text page by page.
type PagesResponse struct {
	Pages []Page
}

// BlocksResponse carries loose text blocks.
type BlocksResponse struct {
	Blocks []string
}

// UnrecognizedResponse is a reply that matched no known shape.
type UnrecognizedResponse struct {
	Raw []byte
}

func (r TextResponse) Text() string { return r.Content }

func (r PagesResponse) Text() string {
	pages := make([]string, 0, len(r.Pages))
	for _, p := range r.Pages {
		if t := p.text(); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n")
}

func (p Page) text() string {
	switch {
	case p.Markdown != "":
		return p.Markdown
	case len(p.Lines) > 0:
		return strings.Join(p.Lines, "\n")
	case len(p.Paragraphs) > 0:
		return strings.Join(p.Paragraphs, "\n")
	}
	return ""
}

func (r BlocksResponse) Text() string { return joinNonEmpty(r.Blocks, "\n") }

func (UnrecognizedResponse) Text() string { return "" }

func (TextResponse) ocrResult()         {}
func (PagesResponse) ocrResult()        {}
func (BlocksResponse) ocrResult()       {}
func (UnrecognizedResponse) ocrResult() {}

type textItem struct {
	Text string `json:"text"`
}

type wirePage struct {
	Markdown   string     `json:"markdown"`
	Lines      []textItem `json:"lines"`
	Paragraphs []textItem `json:"paragraphs"`
}

type wireReply struct {
	Text   *string     `json:"text"`
	Pages  *[]wirePage `json:"pages"`
	Blocks *[]textItem `json:"blocks"`
}

// ParseOCRResponse classifies a raw OCR reply. Shapes are tried in order:
// a non-empty top-level text, a pages array, a blocks array. Anything else,
// including malformed JSON, is an UnrecognizedResponse.
func ParseOCRResponse(data []byte) OCRResult {
	var w wireReply
	if err := json.Unmarshal(data, &w); err != nil {
		return UnrecognizedResponse{Raw: data}
	}

	switch {
	case w.Text != nil && *w.Text != "":
		return TextResponse{Content: *w.Text}
	case w.Pages != nil:
		pages := make([]Page, len(*w.Pages))
		for i, p := range *w.Pages {
			pages[i] = Page{Markdown: p.Markdown, Lines: texts(p.Lines), Paragraphs: texts(p.Paragraphs)}
		}
		return PagesResponse{Pages: pages}
	case w.Blocks != nil:
		return BlocksResponse{Blocks: texts(*w.Blocks)}
	}
	return UnrecognizedResponse{Raw: data}
}

func texts(items []textItem) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Text
	}
	return out
}

func joinNonEmpty(parts []string, sep string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
