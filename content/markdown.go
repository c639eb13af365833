package content

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// markdownConverter wraps the html-to-markdown v2 converter so the rest of
// the package never handles converter options directly.
type markdownConverter struct {
	conv *converter.Converter
}

// newMarkdownConverter builds a reusable, goroutine-safe converter tuned for
// extraction-model input:
//
//   - base plugin: strips script, style, iframe, noscript, head, meta, link,
//     input, textarea and HTML comments.
//   - commonmark plugin: standard Markdown rendering.
//   - table plugin: keeps table structure intact. Booking sites lay out the
//     room/price grid as a table, and the model reads prices out of it.
//     Minimal cell padding keeps the document small.
func newMarkdownConverter() *markdownConverter {
	return &markdownConverter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// toMarkdown converts an HTML fragment to Markdown. The domain resolves
// relative hrefs and srcs into absolute URLs.
func (m *markdownConverter) toMarkdown(htmlContent string, domain string) (string, error) {
	return m.conv.ConvertString(htmlContent, converter.WithDomain(domain))
}
