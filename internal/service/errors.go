package service

import "errors"

var (
	ErrAuthentication    = errors.New("账号或密码错误")
	ErrNotAuthenticated  = errors.New("请先登录")
	ErrInvalidAmount     = errors.New("金额必须大于0")
	ErrInsufficientFunds = errors.New("余额不足")
	ErrAccountNotFound   = errors.New("账户不存在")
	ErrInvalidOperation  = errors.New("操作不允许")
	ErrInvalidInput      = errors.New("输入无效")
)
