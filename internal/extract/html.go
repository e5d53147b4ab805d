package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"

	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
)

// skippedElements are subtrees that carry navigation or styling rather
// than document content.
var skippedElements = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
	"header": true,
}

// HTML extracts visible text from HTML documents, dropping script,
// style, and chrome elements and collapsing whitespace.
type HTML struct{}

var _ Extractor = (*HTML)(nil)

func NewHTML() *HTML {
	return &HTML{}
}

func (h *HTML) Name() string { return "html" }

func (h *HTML) Supports(ext string) bool {
	return ext == ".html" || ext == ".htm" || ext == ".xhtml"
}

func (h *HTML) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", cerrors.New(cerrors.ErrCodeExtractTimeout,
			fmt.Sprintf("extraction canceled for %s", path), err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", cerrors.New(cerrors.ErrCodeExtractFailed,
			fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", cerrors.New(cerrors.ErrCodeExtractFailed,
			fmt.Sprintf("parse html %s", path), err)
	}

	var parts []string
	collectText(doc, &parts)
	return strings.Join(parts, " "), nil
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.ElementNode && skippedElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		for _, field := range strings.Fields(n.Data) {
			*parts = append(*parts, field)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, parts)
	}
}
