package chunkfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	root := t.TempDir()
	storage, err := NewStorage(filepath.Join(root, "chunks"), filepath.Join(root, "merged"))
	require.NoError(t, err)
	return storage
}

func TestNewStorage(t *testing.T) {
	root := t.TempDir()
	chunkDir := filepath.Join(root, "chunks")
	mergeDir := filepath.Join(root, "merged")

	_, err := NewStorage(chunkDir, mergeDir)
	require.NoError(t, err)
	assert.DirExists(t, chunkDir)
	assert.DirExists(t, mergeDir)

	_, err = NewStorage("", mergeDir)
	assert.Error(t, err)
	_, err = NewStorage(chunkDir, "")
	assert.Error(t, err)
}

// 乱序上传的分片必须按序号升序拼接，结果与到达顺序无关
func TestMergeOutOfOrderChunks(t *testing.T) {
	storage := newTestStorage(t)
	fileId := "9f0b2a1c-0000-0000-0000-000000000001"

	for _, chunk := range []struct {
		index int64
		data  string
	}{
		{1, "B"},
		{0, "A"},
		{2, "C"},
	} {
		written, err := storage.WriteChunk(fileId, chunk.index, strings.NewReader(chunk.data))
		require.NoError(t, err)
		assert.Equal(t, int64(len(chunk.data)), written)
	}

	mergedPath, err := storage.Merge(fileId, 3)
	require.NoError(t, err)
	assert.Equal(t, storage.MergedPath(fileId), mergedPath)

	data, err := os.ReadFile(mergedPath)
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(data))

	exists, err := storage.MergedExists(fileId)
	require.NoError(t, err)
	assert.True(t, exists)
}

// 重传分片覆盖旧内容，合并结果以最后一次写入为准
func TestWriteChunkOverwrite(t *testing.T) {
	storage := newTestStorage(t)
	fileId := "9f0b2a1c-0000-0000-0000-000000000002"

	_, err := storage.WriteChunk(fileId, 0, strings.NewReader("stale-data"))
	require.NoError(t, err)
	_, err = storage.WriteChunk(fileId, 0, strings.NewReader("fresh"))
	require.NoError(t, err)

	mergedPath, err := storage.Merge(fileId, 1)
	require.NoError(t, err)

	data, err := os.ReadFile(mergedPath)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

// 分片缺失时合并中止，绝不能留下半成品的最终文件
func TestMergeMissingChunk(t *testing.T) {
	storage := newTestStorage(t)
	fileId := "9f0b2a1c-0000-0000-0000-000000000003"

	_, err := storage.WriteChunk(fileId, 0, strings.NewReader("A"))
	require.NoError(t, err)
	_, err = storage.WriteChunk(fileId, 2, strings.NewReader("C"))
	require.NoError(t, err)

	_, err = storage.Merge(fileId, 3)
	require.Error(t, err)

	exists, err := storage.MergedExists(fileId)
	require.NoError(t, err)
	assert.False(t, exists)

	// 中间产物也要清理干净
	assert.NoFileExists(t, storage.MergedPath(fileId)+mergingSuffix)
}

// 重复合并覆盖同一最终文件，重投递场景下结果不变
func TestMergeIdempotent(t *testing.T) {
	storage := newTestStorage(t)
	fileId := "9f0b2a1c-0000-0000-0000-000000000004"

	_, err := storage.WriteChunk(fileId, 0, strings.NewReader("hello-"))
	require.NoError(t, err)
	_, err = storage.WriteChunk(fileId, 1, strings.NewReader("world"))
	require.NoError(t, err)

	_, err = storage.Merge(fileId, 2)
	require.NoError(t, err)
	mergedPath, err := storage.Merge(fileId, 2)
	require.NoError(t, err)

	data, err := os.ReadFile(mergedPath)
	require.NoError(t, err)
	assert.Equal(t, "hello-world", string(data))
}

func TestChunkCount(t *testing.T) {
	storage := newTestStorage(t)
	fileId := "9f0b2a1c-0000-0000-0000-000000000008"

	count, err := storage.ChunkCount(fileId)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = storage.WriteChunk(fileId, 0, strings.NewReader("A"))
	require.NoError(t, err)
	_, err = storage.WriteChunk(fileId, 3, strings.NewReader("D"))
	require.NoError(t, err)

	count, err = storage.ChunkCount(fileId)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 落盘后不能残留临时文件
	entries, err := os.ReadDir(filepath.Dir(storage.ChunkPath(fileId, 0)))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), ".tmp"), "残留临时文件: %s", entry.Name())
	}
}

func TestRemoveChunks(t *testing.T) {
	storage := newTestStorage(t)
	fileId := "9f0b2a1c-0000-0000-0000-000000000005"

	_, err := storage.WriteChunk(fileId, 0, strings.NewReader("A"))
	require.NoError(t, err)

	fileIds, err := storage.ListChunkDirs()
	require.NoError(t, err)
	assert.Equal(t, []string{fileId}, fileIds)

	require.NoError(t, storage.RemoveChunks(fileId))
	assert.NoFileExists(t, storage.ChunkPath(fileId, 0))

	fileIds, err = storage.ListChunkDirs()
	require.NoError(t, err)
	assert.Empty(t, fileIds)

	// 重复删除是安全的
	require.NoError(t, storage.RemoveChunks(fileId))
}

func TestRemoveStaleMergeTemps(t *testing.T) {
	storage := newTestStorage(t)

	stale := storage.MergedPath("9f0b2a1c-0000-0000-0000-000000000006") + mergingSuffix
	fresh := storage.MergedPath("9f0b2a1c-0000-0000-0000-000000000007") + mergingSuffix
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("partial"), 0644))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	removed, err := storage.RemoveStaleMergeTemps(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}
