package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kb-admin-go/pkg/es"
	"kb-admin-go/pkg/storage"
	"kb-admin-go/pkg/tasks"

	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	docs    map[uint]es.FileDocument
	failErr error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{docs: make(map[uint]es.FileDocument)}
}

func (f *fakeIndexer) IndexFile(_ context.Context, doc es.FileDocument) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.docs[doc.FileID] = doc
	return nil
}

func (f *fakeIndexer) DeleteFile(_ context.Context, fileID uint) error {
	if f.failErr != nil {
		return f.failErr
	}
	delete(f.docs, fileID)
	return nil
}

func TestProcessor_IndexesAndDeletes(t *testing.T) {
	idx := newFakeIndexer()
	p := NewProcessor(idx, nil, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	ctx := context.Background()

	err := p.Handle(ctx, tasks.FileEvent{
		Type:         tasks.EventFileUploaded,
		FileID:       7,
		FileName:     "員工手冊.pdf",
		Category:     "規章制度",
		Size:         2048,
		DepartmentID: 1,
		Uploader:     "hr_admin",
	})
	require.NoError(t, err)
	require.Contains(t, idx.docs, uint(7))
	require.Equal(t, "規章制度", idx.docs[7].Category)
	require.Equal(t, fixed, idx.docs[7].IndexedAt)

	require.NoError(t, p.Handle(ctx, tasks.FileEvent{Type: tasks.EventFileDeleted, FileID: 7, DepartmentID: 1}))
	require.NotContains(t, idx.docs, uint(7))
}

func TestProcessor_UpdatedEventReindexes(t *testing.T) {
	idx := newFakeIndexer()
	p := NewProcessor(idx, nil, nil)
	ctx := context.Background()

	event := tasks.FileEvent{Type: tasks.EventFileUploaded, FileID: 3, FileName: "辦法.pdf", Category: "規章制度", DepartmentID: 1}
	require.NoError(t, p.Handle(ctx, event))

	event.Type = tasks.EventFileUpdated
	event.Category = "未分類"
	require.NoError(t, p.Handle(ctx, event))
	require.Equal(t, "未分類", idx.docs[3].Category)
	require.Equal(t, "辦法.pdf", idx.docs[3].FileName)
}

func TestProcessor_PropagatesIndexErrors(t *testing.T) {
	idx := newFakeIndexer()
	idx.failErr = errors.New("es unavailable")
	p := NewProcessor(idx, nil, nil)

	err := p.Handle(context.Background(), tasks.FileEvent{Type: tasks.EventFileUploaded, FileID: 1})
	require.ErrorContains(t, err, "es unavailable")
}

func TestProcessor_IgnoresUnknownEvents(t *testing.T) {
	p := NewProcessor(newFakeIndexer(), nil, nil)
	require.NoError(t, p.Handle(context.Background(), tasks.FileEvent{Type: "file.renamed", FileID: 1}))
}

type upperExtractor struct {
	err error
}

func (e upperExtractor) ExtractText(_ context.Context, data []byte, _ string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return strings.ToUpper(string(data)), nil
}

func TestProcessor_IndexesExtractedContent(t *testing.T) {
	idx := newFakeIndexer()
	objects := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, objects.PutObject(ctx, "departments/1/t/notes.txt", "text/plain", []byte("leave policy")))

	p := NewProcessor(idx, objects, upperExtractor{})
	require.NoError(t, p.Handle(ctx, tasks.FileEvent{
		Type: tasks.EventFileUploaded, FileID: 3, FileName: "notes.txt", ObjectKey: "departments/1/t/notes.txt",
	}))
	require.Equal(t, "LEAVE POLICY", idx.docs[3].Content)
}

func TestProcessor_ExtractionFailureStillIndexes(t *testing.T) {
	idx := newFakeIndexer()
	objects := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, objects.PutObject(ctx, "k", "", []byte("x")))

	p := NewProcessor(idx, objects, upperExtractor{err: errors.New("tika down")})
	require.NoError(t, p.Handle(ctx, tasks.FileEvent{Type: tasks.EventFileUploaded, FileID: 4, FileName: "a.pdf", ObjectKey: "k"}))
	require.Contains(t, idx.docs, uint(4))
	require.Empty(t, idx.docs[4].Content)

	// 对象不存在时同样只索引元数据
	require.NoError(t, p.Handle(ctx, tasks.FileEvent{Type: tasks.EventFileUploaded, FileID: 5, FileName: "b.pdf", ObjectKey: "missing"}))
	require.Contains(t, idx.docs, uint(5))
}
