package verify

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	zhtranslations "github.com/go-playground/validator/v10/translations/zh"
)

// 支持的翻译语言
const (
	LocaleZH = "zh"
	LocaleEN = "en"
)

// ValidatorInstance 全局校验器实例，挂在 ServiceContext 上复用
type ValidatorInstance struct {
	Validate   *validator.Validate
	Translator ut.Translator
}

// InitValidator 初始化校验器并注册指定语言的翻译
func InitValidator(locale string) (*ValidatorInstance, error) {
	validate := validator.New()

	// 错误提示里优先展示 tag 里的字段名而不是结构体字段名
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form", "path"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})

	zhLocale := zh.New()
	enLocale := en.New()
	uni := ut.New(enLocale, zhLocale, enLocale)

	trans, ok := uni.GetTranslator(locale)
	if !ok {
		return nil, fmt.Errorf("获取翻译器失败: locale=%s", locale)
	}

	var err error
	switch locale {
	case LocaleZH:
		err = zhtranslations.RegisterDefaultTranslations(validate, trans)
	case LocaleEN:
		err = entranslations.RegisterDefaultTranslations(validate, trans)
	default:
		return nil, fmt.Errorf("不支持的语言: %s", locale)
	}
	if err != nil {
		return nil, fmt.Errorf("注册翻译失败: %w", err)
	}

	return &ValidatorInstance{
		Validate:   validate,
		Translator: trans,
	}, nil
}

// RemoveTopSaStr 把校验错误翻译成一条提示，并去掉最外层结构体名前缀
func RemoveTopSaStr(errs validator.ValidationErrors, trans ut.Translator) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Translate(trans)
		// 翻译结果可能形如 "CreateChunkReq.file_id为必填字段"
		if i := strings.Index(msg, "."); i > 0 && !strings.ContainsAny(msg[:i], " \t") {
			msg = msg[i+1:]
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
