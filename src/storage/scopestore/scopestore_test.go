package scopestore_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrotherHong/rag-web-backend/src/storage/scopestore"
)

func TestUniqueFilename(t *testing.T) {
	got := scopestore.UniqueFilename("入學 申請表.docx")

	assert.True(t, strings.HasSuffix(got, ".docx"))
	assert.Contains(t, got, "入學 申請表", "CJK characters survive sanitizing")

	// Dangerous path characters are dropped.
	cleaned := scopestore.UniqueFilename("../../etc/passwd#?.txt")
	assert.NotContains(t, cleaned, "/")
	assert.NotContains(t, cleaned, "#")

	// Two calls never collide even within the same second.
	assert.NotEqual(t, scopestore.UniqueFilename("a.txt"), scopestore.UniqueFilename("a.txt"))
}

func TestSaveUploadAndPromote(t *testing.T) {
	store := scopestore.NewStore(t.TempDir())

	path, size, err := store.SaveUpload(3, "stored.docx", strings.NewReader("content"))
	require.NoError(t, err)
	assert.EqualValues(t, 7, size)
	assert.Contains(t, path, filepath.Join("3", "unprocessed"))

	final, err := store.Promote(3, scopestore.KindData, path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.ProcessedDir(3, scopestore.KindData), "stored.docx"), final)

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	// Promotion moves, it does not copy.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveFileAcrossDirectories(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a", "file.txt")
	dst := filepath.Join(dir, "b", "file.txt")

	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, scopestore.MoveFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}
