package service

import (
	"fmt"
	"slices"
)

// SessionState 会话状态
type SessionState int

const (
	StateLoggedOut SessionState = iota
	StateLoggedIn
)

func (s SessionState) String() string {
	if s == StateLoggedIn {
		return "LoggedIn"
	}
	return "LoggedOut"
}

// Operation 会话上可执行的操作
type Operation string

const (
	OpCreateAccount  Operation = "create_account"
	OpLogin          Operation = "login"
	OpLogout         Operation = "logout"
	OpDeposit        Operation = "deposit"
	OpWithdraw       Operation = "withdraw"
	OpTransfer       Operation = "transfer"
	OpBalance        Operation = "balance"
	OpHistory        Operation = "history"
	OpChangePassword Operation = "change_password"
)

// AllowedOperations 各状态下允许的操作
var AllowedOperations = map[SessionState][]Operation{
	StateLoggedOut: {OpCreateAccount, OpLogin},
	StateLoggedIn:  {OpLogout, OpDeposit, OpWithdraw, OpTransfer, OpBalance, OpHistory, OpChangePassword},
}

// CanPerform 判断 state 下是否允许执行 op
func CanPerform(state SessionState, op Operation) bool {
	return slices.Contains(AllowedOperations[state], op)
}

// Session 当前登录的账户，未登录时为空
// 会话由调用方持有并传入 BankService，同一进程内可以并存多个会话
type Session struct {
	accountNumber int64
	name          string
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) State() SessionState {
	if s.accountNumber == 0 {
		return StateLoggedOut
	}
	return StateLoggedIn
}

// AccountNumber 已登录账户的账号，未登录时为 0
func (s *Session) AccountNumber() int64 {
	return s.accountNumber
}

// Name 已登录账户的户名
func (s *Session) Name() string {
	return s.name
}

// require 校验当前状态能否执行 op，已登录时返回账号
func (s *Session) require(op Operation) (int64, error) {
	state := s.State()
	if CanPerform(state, op) {
		return s.accountNumber, nil
	}
	if state == StateLoggedOut {
		return 0, ErrNotAuthenticated
	}
	return 0, fmt.Errorf("%w: 已登录状态下不能执行 %s", ErrInvalidOperation, op)
}

func (s *Session) login(number int64, name string) {
	s.accountNumber = number
	s.name = name
}

func (s *Session) logout() {
	s.accountNumber = 0
	s.name = ""
}
