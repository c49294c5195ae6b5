package jobs

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/mergequeue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSweepJobRemovesOrphanChunks(t *testing.T) {
	svcCtx := newJanitorSvcCtx(t)
	ctx := context.Background()

	// 只有分片目录没有会话
	_, err := svcCtx.ChunkStorage.WriteChunk("orphan-file", 0, strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, NewSessionSweepJob(svcCtx).Execute(ctx))

	dirs, err := svcCtx.ChunkStorage.ListChunkDirs()
	require.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestSessionSweepJobRemovesTerminalChunks(t *testing.T) {
	svcCtx := newJanitorSvcCtx(t)
	ctx := context.Background()

	fileId := readyFile(t, svcCtx, "a", "b")
	require.NoError(t, svcCtx.SessionStore.SetStatus(ctx, fileId, sessionstore.StatusCompleted))

	require.NoError(t, NewSessionSweepJob(svcCtx).Execute(ctx))

	count, err := svcCtx.ChunkStorage.ChunkCount(fileId)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

// 分片集齐但完成检测方在推进状态前中断，由巡检补触发合并
func TestSessionSweepJobTriggersMergeForFullSet(t *testing.T) {
	svcCtx := newJanitorSvcCtx(t)
	ctx := context.Background()

	sess, err := svcCtx.SessionStore.CreateSession(ctx, 2)
	require.NoError(t, err)
	for i := int64(0); i < 2; i++ {
		_, err = svcCtx.ChunkStorage.WriteChunk(sess.FileId, i, strings.NewReader("p"))
		require.NoError(t, err)
		_, _, err = svcCtx.SessionStore.RecordChunk(ctx, sess.FileId, i)
		require.NoError(t, err)
	}

	require.NoError(t, NewSessionSweepJob(svcCtx).Execute(ctx))

	session, err := svcCtx.SessionStore.GetSession(ctx, sess.FileId)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusReadyToMerge, session.Status)

	queueLen, err := svcCtx.Cache.LlenCtx(ctx, mergequeue.MergeQueueKey)
	require.NoError(t, err)
	assert.Equal(t, 1, queueLen)
}

// 状态已是 ReadyToMerge 但没有在途任务，说明入队丢失，巡检补投
func TestSessionSweepJobReenqueuesLostReadyToMerge(t *testing.T) {
	svcCtx := newJanitorSvcCtx(t)
	ctx := context.Background()

	fileId := readyFile(t, svcCtx, "a")

	require.NoError(t, NewSessionSweepJob(svcCtx).Execute(ctx))

	queueLen, err := svcCtx.Cache.LlenCtx(ctx, mergequeue.MergeQueueKey)
	require.NoError(t, err)
	assert.Equal(t, 1, queueLen)

	inflight, err := svcCtx.MergeProducer.IsInflight(ctx, fileId)
	require.NoError(t, err)
	assert.True(t, inflight)
}

func TestSessionSweepJobSkipsInflightReadyToMerge(t *testing.T) {
	svcCtx := newJanitorSvcCtx(t)
	ctx := context.Background()

	fileId := readyFile(t, svcCtx, "a")
	_, err := svcCtx.MergeProducer.Enqueue(ctx, fileId)
	require.NoError(t, err)

	require.NoError(t, NewSessionSweepJob(svcCtx).Execute(ctx))

	// 已在途的任务不重复投递
	queueLen, err := svcCtx.Cache.LlenCtx(ctx, mergequeue.MergeQueueKey)
	require.NoError(t, err)
	assert.Equal(t, 1, queueLen)
}

func TestSessionSweepJobLeavesPartialAlone(t *testing.T) {
	svcCtx := newJanitorSvcCtx(t)
	ctx := context.Background()

	sess, err := svcCtx.SessionStore.CreateSession(ctx, 2)
	require.NoError(t, err)
	_, err = svcCtx.ChunkStorage.WriteChunk(sess.FileId, 0, strings.NewReader("p"))
	require.NoError(t, err)
	_, _, err = svcCtx.SessionStore.RecordChunk(ctx, sess.FileId, 0)
	require.NoError(t, err)

	require.NoError(t, NewSessionSweepJob(svcCtx).Execute(ctx))

	// 上传中的会话不动
	session, err := svcCtx.SessionStore.GetSession(ctx, sess.FileId)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusInProgress, session.Status)

	count, err := svcCtx.ChunkStorage.ChunkCount(sess.FileId)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	queueLen, err := svcCtx.Cache.LlenCtx(ctx, mergequeue.MergeQueueKey)
	require.NoError(t, err)
	assert.Equal(t, 0, queueLen)
}

func TestSessionSweepJobRemovesStaleMergeTemps(t *testing.T) {
	svcCtx := newJanitorSvcCtx(t)
	ctx := context.Background()

	tmpPath := svcCtx.ChunkStorage.MergedPath("dead-merge") + ".merging.tmp"
	require.NoError(t, os.WriteFile(tmpPath, []byte("partial"), 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(tmpPath, old, old))

	require.NoError(t, NewSessionSweepJob(svcCtx).Execute(ctx))

	_, err := os.Stat(tmpPath)
	assert.True(t, os.IsNotExist(err))
}
