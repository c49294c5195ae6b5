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

// 查询上传进度
func FileStatusHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.FileStatusReq
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.CodeInvalidArgument, err.Error()))
			return
		}

		defaults.SetDefaults(&req)
		if err := svcCtx.Validator.Validate.StructCtx(r.Context(), &req); err != nil {
			strErr := verify.RemoveTopSaStr(err.(validator.ValidationErrors), svcCtx.Validator.Translator)
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.CodeValidate, strErr))
			return
		}

		l := upload.NewFileStatusLogic(r.Context(), svcCtx)
		resp, err := l.FileStatus(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
