package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/chunkfs"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/sessionstore"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/common/uploadevent"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/config"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/mergequeue"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"
	"github.com/yanshicheng/upload-nova/common/handler/errorx"
	"github.com/yanshicheng/upload-nova/common/verify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"
	"github.com/zeromicro/go-zero/rest/httpx"
	"github.com/zeromicro/go-zero/rest/pathvar"
)

func TestMain(m *testing.M) {
	// 与 main 保持一致的统一错误响应
	httpx.SetErrorHandler(errorx.ErrHandler)
	os.Exit(m.Run())
}

func newHandlerSvcCtx(t *testing.T) *svc.ServiceContext {
	validator, err := verify.InitValidator(verify.LocaleZH)
	require.NoError(t, err)

	rdb := redistest.CreateRedis(t)
	baseDir := t.TempDir()
	storage, err := chunkfs.NewStorage(
		filepath.Join(baseDir, "chunks"),
		filepath.Join(baseDir, "merged"),
	)
	require.NoError(t, err)

	return &svc.ServiceContext{
		Config:         config.Config{},
		Cache:          rdb,
		Validator:      validator,
		SessionStore:   sessionstore.NewStore(rdb),
		ChunkStorage:   storage,
		MergeProducer:  mergequeue.NewProducer(rdb),
		EventPublisher: uploadevent.NewPublisher(rdb),
	}
}

type statusBody struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func TestInitFileUploadHandler(t *testing.T) {
	svcCtx := newHandlerSvcCtx(t)

	r := httptest.NewRequest(http.MethodPost, "/content/init-file-upload/4", nil)
	r = pathvar.WithVars(r, map[string]string{"totalChunks": "4"})
	w := httptest.NewRecorder()

	InitFileUploadHandler(svcCtx)(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["file_id"])
	assert.Equal(t, "Initialized", body["status"])
	assert.Equal(t, float64(4), body["total_chunks"])
}

func TestInitFileUploadHandlerInvalidTotal(t *testing.T) {
	svcCtx := newHandlerSvcCtx(t)

	r := httptest.NewRequest(http.MethodPost, "/content/init-file-upload/0", nil)
	r = pathvar.WithVars(r, map[string]string{"totalChunks": "0"})
	w := httptest.NewRecorder()

	InitFileUploadHandler(svcCtx)(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body statusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int32(errorx.CodeInvalidArgument), body.Code)
}

func TestFileStatusHandlerNotFound(t *testing.T) {
	svcCtx := newHandlerSvcCtx(t)

	r := httptest.NewRequest(http.MethodGet, "/content/files/11111111-2222-3333-4444-555555555555", nil)
	r = pathvar.WithVars(r, map[string]string{"fileId": "11111111-2222-3333-4444-555555555555"})
	w := httptest.NewRecorder()

	FileStatusHandler(svcCtx)(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)

	var body statusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int32(errorx.CodeSessionNotFound), body.Code)
	assert.NotEmpty(t, body.Message)
}

// 状态查询走完整 handler 链路（路径参数 -> 校验 -> 逻辑 -> JSON 响应）
func TestFileStatusHandlerOK(t *testing.T) {
	svcCtx := newHandlerSvcCtx(t)
	ctx := context.Background()

	sess, err := svcCtx.SessionStore.CreateSession(ctx, 3)
	require.NoError(t, err)
	_, _, err = svcCtx.SessionStore.RecordChunk(ctx, sess.FileId, 0)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/content/files/"+sess.FileId, nil)
	r = pathvar.WithVars(r, map[string]string{"fileId": sess.FileId})
	w := httptest.NewRecorder()

	FileStatusHandler(svcCtx)(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, sess.FileId, body["file_id"])
	assert.Equal(t, "InProgress", body["status"])
	assert.Equal(t, float64(3), body["total_chunks"])
	assert.Equal(t, float64(1), body["uploaded_chunks"])
}

func TestCreateChunkHandler(t *testing.T) {
	svcCtx := newHandlerSvcCtx(t)
	ctx := context.Background()

	sess, err := svcCtx.SessionStore.CreateSession(ctx, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("file_id", sess.FileId))
	require.NoError(t, mw.WriteField("chunk_id", "0"))
	fw, err := mw.CreateFormFile("file", "blob")
	require.NoError(t, err)
	_, err = fw.Write([]byte("chunk-data"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/content/create-chunk", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	CreateChunkHandler(svcCtx)(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, sess.FileId, body["file_id"])
	assert.Equal(t, float64(1), body["uploaded_chunks"])

	data, err := os.ReadFile(svcCtx.ChunkStorage.ChunkPath(sess.FileId, 0))
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk-data"), data)
}

func TestCreateChunkHandlerMissingFileId(t *testing.T) {
	svcCtx := newHandlerSvcCtx(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("chunk_id", "0"))
	fw, err := mw.CreateFormFile("file", "blob")
	require.NoError(t, err)
	_, err = fw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/content/create-chunk", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	CreateChunkHandler(svcCtx)(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
