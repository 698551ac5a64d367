package response

import (
	"errors"
	"fmt"
	"io"

	"banksystem/internal/repository"
	"banksystem/internal/service"
)

const (
	CodeSuccess      = 0
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeServerError  = 500
)

const (
	CodeBalanceNotEnough = 1003
	CodeAccountNotFound  = 1005
	CodeStorageCorrupted = 1008
	CodeStorageWrite     = 1009
)

// CodeOf 将错误映射为稳定的错误码
func CodeOf(err error) int {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidInput):
		return CodeParamError
	case errors.Is(err, service.ErrAuthentication), errors.Is(err, service.ErrNotAuthenticated):
		return CodeUnauthorized
	case errors.Is(err, service.ErrInvalidOperation):
		return CodeForbidden
	case errors.Is(err, service.ErrInsufficientFunds):
		return CodeBalanceNotEnough
	case errors.Is(err, service.ErrAccountNotFound):
		return CodeAccountNotFound
	case errors.Is(err, repository.ErrStorageCorruption):
		return CodeStorageCorrupted
	case errors.Is(err, repository.ErrStorageWrite):
		return CodeStorageWrite
	default:
		return CodeServerError
	}
}

// Success 输出成功提示
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✅ "+format+"\n", args...)
}

// Error 输出错误提示，附带错误码
func Error(w io.Writer, err error) {
	fmt.Fprintf(w, "❌ [%d] %v\n", CodeOf(err), err)
}

// ParamError 输入格式错误，未进入业务层
func ParamError(w io.Writer, message string) {
	fmt.Fprintf(w, "❌ [%d] %s\n", CodeParamError, message)
}
