package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdrive/internal/chunker"
	"github.com/xxxsen/ragdrive/internal/doccache"
	"github.com/xxxsen/ragdrive/internal/extract"
	"github.com/xxxsen/ragdrive/internal/filestore"
	"github.com/xxxsen/ragdrive/internal/model"
	appErr "github.com/xxxsen/ragdrive/internal/pkg/errors"
)

type fakeRemote struct {
	mu       sync.Mutex
	folders  map[string]map[string]string
	listErr  error
	failName string
}

func (f *fakeRemote) Name() string { return "fake" }

func (f *fakeRemote) List(ctx context.Context, folderID string) ([]model.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	files, ok := f.folders[folderID]
	if !ok {
		return nil, errors.New("404 folder not found")
	}
	out := make([]model.RemoteFile, 0, len(files))
	for name := range files {
		out = append(out, model.RemoteFile{ID: folderID + "/" + name, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRemote) Download(ctx context.Context, file model.RemoteFile) (*model.RawFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file.Name == f.failName {
		return nil, errors.New("connection reset")
	}
	folder, _, _ := strings.Cut(file.ID, "/")
	return &model.RawFile{ID: file.ID, Name: file.Name, Data: []byte(f.folders[folder][file.Name])}, nil
}

type bagEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (b *bagEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	b.mu.Lock()
	b.calls++
	err := b.err
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	vec := make([]float32, 32)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,?!")))
		vec[h.Sum32()%32]++
	}
	vec[31] += 0.01
	return vec, nil
}

type recordingLLM struct {
	prompts []string
	answer  string
	err     error
}

func (r *recordingLLM) Complete(ctx context.Context, prompt string) (string, error) {
	r.prompts = append(r.prompts, prompt)
	if r.err != nil {
		return "", r.err
	}
	return r.answer, nil
}

type fixture struct {
	remote *fakeRemote
	store  filestore.Store
	emb    *bagEmbedder
	llm    *recordingLLM
	svc    *RAGService
}

func newFixture(t *testing.T, maxChars int) *fixture {
	t.Helper()
	f := &fixture{
		remote: &fakeRemote{folders: map[string]map[string]string{}},
		store:  filestore.NewLocal(t.TempDir()),
		emb:    &bagEmbedder{},
		llm:    &recordingLLM{answer: "an answer"},
	}
	f.svc = f.newService(t, maxChars)
	return f
}

func (f *fixture) newService(t *testing.T, maxChars int) *RAGService {
	ck, err := chunker.New(chunker.Config{MaxChunkChars: maxChars, OverlapChars: 0})
	require.NoError(t, err)
	return NewRAGService(f.remote, extract.New(extract.Options{}), ck, doccache.New(f.store, ""), f.emb, f.llm, Options{DownloadConcurrency: 2})
}

func TestIngestAndAnswer_HelloWorld(t *testing.T) {
	f := newFixture(t, 100)
	f.remote.folders["F"] = map[string]string{"hello.txt": "hello world"}

	res, err := f.svc.Ingest(context.Background(), "F")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 1, res.Chunks)

	ans, err := f.svc.Answer(context.Background(), "What does the file say?")
	require.NoError(t, err)
	assert.Equal(t, "an answer", ans.Text)
	require.Len(t, f.llm.prompts, 1)
	assert.Equal(t,
		"Answer the following question based only on the provided context:\n\n<context>\nhello world\n</context>\n\nQuestion: What does the file say?",
		f.llm.prompts[0])
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "hello.txt", ans.Sources[0].Chunk.Metadata[model.MetaSource])

	st := f.svc.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, "F", st.FolderID)
}

func TestAnswer_BeforeIngest(t *testing.T) {
	f := newFixture(t, 100)
	_, err := f.svc.Answer(context.Background(), "anything")
	assert.ErrorIs(t, err, appErr.ErrFolderNotSet)
	assert.ErrorIs(t, err, appErr.ErrNotReady)
	assert.Equal(t, "not ready: Folder ID not set", err.Error())
	assert.Empty(t, f.llm.prompts)
}

func TestAnswer_FolderWithoutIndex(t *testing.T) {
	f := newFixture(t, 100)
	f.svc.state.Store(&State{FolderID: "F"})
	_, err := f.svc.Answer(context.Background(), "anything")
	assert.ErrorIs(t, err, appErr.ErrDocumentsNotLoaded)
	assert.NotErrorIs(t, err, appErr.ErrFolderNotSet)
}

func TestAnswer_RetrievalIsDistinctFromNotReady(t *testing.T) {
	f := newFixture(t, 100)
	f.remote.folders["F"] = map[string]string{"a.txt": "apples are red"}
	_, err := f.svc.Ingest(context.Background(), "F")
	require.NoError(t, err)

	ans, err := f.svc.Answer(context.Background(), "completely unrelated words")
	require.NoError(t, err)
	assert.NotNil(t, ans)
	assert.Len(t, f.llm.prompts, 1)

	assert.Contains(t, BuildPrompt("q", nil), "<context>\n\n</context>")

	_, err = f.svc.Answer(context.Background(), "   ")
	assert.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestAnswer_GenerationFailure(t *testing.T) {
	f := newFixture(t, 100)
	f.remote.folders["F"] = map[string]string{"a.txt": "apples are red"}
	_, err := f.svc.Ingest(context.Background(), "F")
	require.NoError(t, err)

	f.llm.err = errors.New("model overloaded")
	_, err = f.svc.Answer(context.Background(), "apples?")
	var genErr *appErr.AnswerGenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "model overloaded", err.Error())

	f.llm.err = nil
	f.emb.err = errors.New("embed down")
	_, err = f.svc.Answer(context.Background(), "apples?")
	assert.ErrorIs(t, err, appErr.ErrAnswerGeneration)
}

func TestIngest_FailureKeepsPreviousState(t *testing.T) {
	f := newFixture(t, 50)
	f.remote.folders["A"] = map[string]string{"a.txt": "alpha document about apples"}
	f.remote.folders["B"] = map[string]string{
		"1.txt": "beta one",
		"2.txt": "beta two",
		"3.txt": "beta three",
	}
	_, err := f.svc.Ingest(context.Background(), "A")
	require.NoError(t, err)
	before := f.svc.current()

	f.remote.failName = "2.txt"
	_, err = f.svc.Ingest(context.Background(), "B")
	var remoteErr *appErr.RemoteAccessError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "download", remoteErr.Op)
	assert.Equal(t, "2.txt", remoteErr.Target)

	assert.Same(t, before, f.svc.current())
	snap, err := doccache.New(f.store, "").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", snap.FolderID)

	_, err = f.svc.Answer(context.Background(), "apples")
	require.NoError(t, err)
	assert.Contains(t, f.llm.prompts[len(f.llm.prompts)-1], "alpha document about apples")
}

func TestIngest_ParseAndEmbedFailuresKeepState(t *testing.T) {
	f := newFixture(t, 50)
	f.remote.folders["A"] = map[string]string{"a.txt": "alpha"}
	f.remote.folders["BAD"] = map[string]string{"broken.pdf": "not a pdf"}
	f.remote.folders["C"] = map[string]string{"c.txt": "gamma"}
	_, err := f.svc.Ingest(context.Background(), "A")
	require.NoError(t, err)

	_, err = f.svc.Ingest(context.Background(), "BAD")
	var parseErr *appErr.DocumentParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "broken.pdf", parseErr.Name)

	f.emb.err = errors.New("quota")
	_, err = f.svc.Ingest(context.Background(), "C")
	assert.Error(t, err)
	assert.Equal(t, "A", f.svc.Status().FolderID)
}

func TestIngest_EmptyFolderVsAccessError(t *testing.T) {
	f := newFixture(t, 50)
	f.remote.folders["EMPTY"] = map[string]string{}
	f.remote.folders["BLANK"] = map[string]string{"blank.txt": "  \n\n "}

	_, err := f.svc.Ingest(context.Background(), "EMPTY")
	assert.ErrorIs(t, err, appErr.ErrEmptyFolder)
	assert.ErrorIs(t, err, appErr.ErrEmptyCorpus)
	assert.NotErrorIs(t, err, appErr.ErrRemoteAccess)

	_, err = f.svc.Ingest(context.Background(), "BLANK")
	assert.ErrorIs(t, err, appErr.ErrEmptyCorpus)
	assert.NotErrorIs(t, err, appErr.ErrEmptyFolder)

	_, err = f.svc.Ingest(context.Background(), "MISSING")
	assert.ErrorIs(t, err, appErr.ErrRemoteAccess)
	assert.NotErrorIs(t, err, appErr.ErrEmptyCorpus)

	_, err = f.svc.Ingest(context.Background(), " ")
	assert.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestRestore_RebuildsFromCache(t *testing.T) {
	f := newFixture(t, 50)
	f.remote.folders["F"] = map[string]string{"a.txt": "alpha document", "b.txt": "bravo document"}
	_, err := f.svc.Ingest(context.Background(), "F")
	require.NoError(t, err)

	f.remote.listErr = errors.New("offline")
	restarted := f.newService(t, 50)
	require.NoError(t, restarted.Restore(context.Background()))
	st := restarted.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, "F", st.FolderID)
	assert.Equal(t, 2, st.Chunks)

	_, err = restarted.Answer(context.Background(), "bravo")
	require.NoError(t, err)
}

func TestRestore_EmptyAndLegacyCache(t *testing.T) {
	f := newFixture(t, 50)
	require.NoError(t, f.svc.Restore(context.Background()))
	assert.False(t, f.svc.Status().Ready)

	legacy := `[{"page_content":"old","metadata":{}}]`
	require.NoError(t, f.store.Put(context.Background(), doccache.DefaultKey, []byte(legacy)))
	require.NoError(t, f.svc.Restore(context.Background()))
	_, err := f.svc.Answer(context.Background(), "old?")
	assert.ErrorIs(t, err, appErr.ErrFolderNotSet)
}

func TestRestore_EmbedFailureReportsNotLoaded(t *testing.T) {
	f := newFixture(t, 50)
	f.remote.folders["F"] = map[string]string{"a.txt": "alpha"}
	_, err := f.svc.Ingest(context.Background(), "F")
	require.NoError(t, err)

	f.emb.err = errors.New("down")
	restarted := f.newService(t, 50)
	assert.Error(t, restarted.Restore(context.Background()))
	_, err = restarted.Answer(context.Background(), "alpha")
	assert.ErrorIs(t, err, appErr.ErrDocumentsNotLoaded)
}

func TestResync(t *testing.T) {
	f := newFixture(t, 50)
	res, err := f.svc.Resync(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)

	f.remote.folders["F"] = map[string]string{"a.txt": "alpha"}
	_, err = f.svc.Ingest(context.Background(), "F")
	require.NoError(t, err)
	f.remote.folders["F"]["b.txt"] = "bravo"
	res, err = f.svc.Resync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 2, f.svc.Status().Chunks)
}

func TestIngest_ConcurrentCallsSerialize(t *testing.T) {
	f := newFixture(t, 50)
	f.remote.folders["A"] = map[string]string{"a.txt": "alpha"}
	f.remote.folders["B"] = map[string]string{"b.txt": "bravo"}
	var wg sync.WaitGroup
	for _, id := range []string{"A", "B", "A", "B"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Ingest(context.Background(), id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()
	st := f.svc.current()
	require.NotNil(t, st)
	require.Len(t, st.Chunks, 1)
	switch st.FolderID {
	case "A":
		assert.Equal(t, "alpha", st.Chunks[0].Text)
	case "B":
		assert.Equal(t, "bravo", st.Chunks[0].Text)
	default:
		t.Fatalf("unexpected folder %q", st.FolderID)
	}
}
