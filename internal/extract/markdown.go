package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

func init() {
	Register(ContentTypeMarkdown, guard("markdown", markdownText))
}

// markdownText drops markdown syntax and keeps one block of text per
// top-level node, separated by blank lines. Code blocks keep their lines.
func markdownText(data []byte) (string, error) {
	plain, err := plainText(data)
	if err != nil {
		return "", err
	}
	source := []byte(plain)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		var txt string
		switch n := node.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			txt = blockLines(n, source)
		default:
			txt = inlineText(n, source)
		}
		txt = strings.TrimSpace(txt)
		if txt != "" {
			blocks = append(blocks, txt)
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

func blockLines(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		sb.Write(line.Value(source))
	}
	return sb.String()
}

func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			sb.WriteString(blockLines(t, source))
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
