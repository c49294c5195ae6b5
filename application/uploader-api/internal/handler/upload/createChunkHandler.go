package upload

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mcuadros/go-defaults"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/logic/upload"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/svc"
	"github.com/yanshicheng/upload-nova/application/uploader-api/internal/types"
	"github.com/yanshicheng/upload-nova/common/handler/errorx"
	"github.com/yanshicheng/upload-nova/common/verify"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// 上传单个分片
func CreateChunkHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// 1. 解析表单参数（分片上传使用 multipart/form-data）
		var req types.CreateChunkReq
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.CodeInvalidArgument, err.Error()))
			return
		}

		// 2. 设置默认值并验证
		defaults.SetDefaults(&req)
		if err := svcCtx.Validator.Validate.StructCtx(r.Context(), &req); err != nil {
			strErr := verify.RemoveTopSaStr(err.(validator.ValidationErrors), svcCtx.Validator.Translator)
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.CodeValidate, strErr))
			return
		}

		// 3. 调用 Logic（传入 Request 用于读取分片文件）
		l := upload.NewCreateChunkLogic(r.Context(), svcCtx, r)
		resp, err := l.CreateChunk(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
