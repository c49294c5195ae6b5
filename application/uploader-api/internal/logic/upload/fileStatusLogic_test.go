package upload

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/types"
	"github.com/yanshicheng/upload-nova/common/handler/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStatus(t *testing.T) {
	svcCtx := newTestSvcCtx(t)
	ctx := context.Background()

	initResp, err := NewInitFileUploadLogic(ctx, svcCtx).InitFileUpload(&types.InitFileUploadReq{TotalChunks: 2})
	require.NoError(t, err)
	fileId := initResp.FileId

	resp, err := NewFileStatusLogic(ctx, svcCtx).FileStatus(&types.FileStatusReq{FileId: fileId})
	require.NoError(t, err)
	assert.Equal(t, fileId, resp.FileId)
	assert.Equal(t, string(sessionstore.StatusInitialized), resp.Status)
	assert.Equal(t, int64(2), resp.TotalChunks)
	assert.Equal(t, int64(0), resp.UploadedChunks)

	_, err = uploadChunk(t, svcCtx, fileId, 0, []byte("part-0"))
	require.NoError(t, err)

	resp, err = NewFileStatusLogic(ctx, svcCtx).FileStatus(&types.FileStatusReq{FileId: fileId})
	require.NoError(t, err)
	assert.Equal(t, string(sessionstore.StatusInProgress), resp.Status)
	assert.Equal(t, int64(1), resp.UploadedChunks)
}

func TestFileStatusNotFound(t *testing.T) {
	svcCtx := newTestSvcCtx(t)

	_, err := NewFileStatusLogic(context.Background(), svcCtx).FileStatus(&types.FileStatusReq{
		FileId: "11111111-2222-3333-4444-555555555555",
	})
	assertCode(t, err, errorx.CodeSessionNotFound)
}

// 状态查询响应的字段名是对外契约，轮询客户端按这些名字取值
func TestFileStatusResponseFieldNames(t *testing.T) {
	resp := types.FileStatusResp{
		FileId:         "abc",
		Status:         string(sessionstore.StatusInProgress),
		TotalChunks:    4,
		UploadedChunks: 2,
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Len(t, fields, 4)
	assert.Contains(t, fields, "file_id")
	assert.Contains(t, fields, "status")
	assert.Contains(t, fields, "total_chunks")
	assert.Contains(t, fields, "uploaded_chunks")
	assert.Equal(t, "InProgress", fields["status"])
}
