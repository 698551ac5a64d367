package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误信息使用 label 标签里的字段名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})
	return v
}

type createAccountInput struct {
	Name     string `validate:"required,excludesall=\r\n" label:"户名"`
	Password string `validate:"required" label:"密码"`
}

type changePasswordInput struct {
	NewPassword string `validate:"required" label:"新密码"`
}

// validateInput 校验失败时返回包装了 ErrInvalidInput 的错误
func validateInput(obj any) error {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Field()+getErrorMsg(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func getErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "不能为空"
	case "excludesall":
		return "不能包含换行"
	default:
		return "无效"
	}
}
