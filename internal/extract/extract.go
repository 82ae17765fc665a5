package extract

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/xxxsen/ragdrive/internal/model"
	appErr "github.com/xxxsen/ragdrive/internal/pkg/errors"
)

const (
	ContentTypePlain    = "text/plain"
	ContentTypeMarkdown = "text/markdown"
	ContentTypePDF      = "application/pdf"
	ContentTypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var suffixTypes = map[string]string{
	".pdf":      ContentTypePDF,
	".docx":     ContentTypeDOCX,
	".md":       ContentTypeMarkdown,
	".markdown": ContentTypeMarkdown,
	".txt":      ContentTypePlain,
}

// Func converts a raw payload into plain text.
type Func func(data []byte) (string, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Func{}
)

func Register(contentType string, fn Func) {
	key := strings.ToLower(strings.TrimSpace(contentType))
	if key == "" || fn == nil {
		return
	}
	registryMu.Lock()
	registry[key] = fn
	registryMu.Unlock()
}

func lookup(contentType string) Func {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[strings.ToLower(contentType)]
}

// ContentType infers the content type from the file name suffix, then from
// the MIME type reported by the remote store.
func ContentType(name, mimeHint string) string {
	if ct, ok := suffixTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	hint := strings.ToLower(strings.TrimSpace(mimeHint))
	if i := strings.Index(hint, ";"); i >= 0 {
		hint = strings.TrimSpace(hint[:i])
	}
	switch hint {
	case ContentTypePDF, ContentTypeDOCX, ContentTypeMarkdown:
		return hint
	}
	return ContentTypePlain
}

type Options struct {
	MarkdownAsText bool
}

type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// Extract turns a downloaded file into a TextDocument. Any failure is a
// *DocumentParseError naming the file.
func (e *Extractor) Extract(file *model.RawFile) (*model.TextDocument, error) {
	contentType := file.ContentType
	if contentType == "" {
		contentType = ContentType(file.Name, "")
	}
	if contentType == ContentTypeMarkdown && !e.opts.MarkdownAsText {
		contentType = ContentTypePlain
	}
	fn := lookup(contentType)
	if fn == nil {
		fn = plainText
	}
	text, err := fn(file.Data)
	if err != nil {
		return nil, &appErr.DocumentParseError{Name: file.Name, ContentType: contentType, Err: err}
	}
	return &model.TextDocument{
		Text: text,
		Metadata: map[string]string{
			model.MetaSource: file.Name,
			model.MetaFileID: file.ID,
		},
	}, nil
}

func guard(name string, fn Func) Func {
	return func(data []byte) (text string, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s parser panic: %v", name, r)
			}
		}()
		return fn(data)
	}
}
