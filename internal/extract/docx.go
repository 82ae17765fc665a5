package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

func init() {
	Register(ContentTypeDOCX, guard("docx", docxText))
}

// docxParagraphs walks word/document.xml and returns the text of every
// body level paragraph. Runs are read wherever they sit inside the
// paragraph, so hyperlinks, smart tags and tracked insertions keep their
// text. Text boxes anchored in a run are not part of the paragraph.
func docxParagraphs(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		stack  []string
		lines  []string
		sb     strings.Builder
		inPara bool
		inText bool
		skip   int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			stack = append(stack, name)
			switch {
			case skip > 0:
				skip++
			case !inPara && name == "p" && len(stack) == 3 && stack[1] == "body":
				inPara = true
				sb.Reset()
			case !inPara:
			case name == "txbxContent":
				skip = 1
			case name == "t":
				inText = true
			case name == "tab":
				sb.WriteByte('\t')
			case name == "br" || name == "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced element %s", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
			switch {
			case skip > 0:
				skip--
			case t.Name.Local == "t":
				inText = false
			case inPara && t.Name.Local == "p" && len(stack) == 2:
				inPara = false
				lines = append(lines, sb.String())
			}
		case xml.CharData:
			if inPara && inText && skip == 0 {
				sb.Write(t)
			}
		}
	}
	return lines, nil
}

// docxText joins the text of every body paragraph with newlines.
func docxText(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	var body []byte
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		body, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		break
	}
	if body == nil {
		return "", fmt.Errorf("word/document.xml not found")
	}
	lines, err := docxParagraphs(body)
	if err != nil {
		return "", fmt.Errorf("decode document.xml: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}
