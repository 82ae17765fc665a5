package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdrive/internal/ai"
	"github.com/xxxsen/ragdrive/internal/model"
	appErr "github.com/xxxsen/ragdrive/internal/pkg/errors"
)

const promptTemplate = "Answer the following question based only on the provided context:\n\n<context>\n%s\n</context>\n\nQuestion: %s"

// BuildPrompt fills the fixed question template with the retrieved chunks.
func BuildPrompt(question string, matches []model.Match) string {
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Chunk.Text)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(texts, "\n\n"), question)
}

// Answer retrieves the closest chunks for question and asks the chat model
// once. Readiness is checked against a single loaded state.
func (s *RAGService) Answer(ctx context.Context, question string) (*model.Answer, error) {
	st := s.current()
	if st == nil || st.FolderID == "" {
		return nil, appErr.ErrFolderNotSet
	}
	if len(st.Chunks) == 0 || st.Index == nil {
		return nil, appErr.ErrDocumentsNotLoaded
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: query is required", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("folder_id", st.FolderID))

	vec, err := s.embedder.Embed(ctx, question, ai.TaskRetrievalQuery)
	if err != nil {
		logger.Error("embed query failed", zap.Error(err))
		return nil, &appErr.AnswerGenerationError{Err: fmt.Errorf("embed query: %w", err)}
	}
	matches, err := st.Index.Search(vec, s.opts.TopK)
	if err != nil {
		return nil, &appErr.AnswerGenerationError{Err: fmt.Errorf("search index: %w", err)}
	}
	text, err := s.llm.Complete(ctx, BuildPrompt(question, matches))
	if err != nil {
		logger.Error("chat completion failed", zap.Error(err))
		return nil, &appErr.AnswerGenerationError{Err: err}
	}
	logger.Debug("query answered", zap.Int("sources", len(matches)), zap.Int("answer_chars", len(text)))
	return &model.Answer{Text: text, Sources: matches}, nil
}
