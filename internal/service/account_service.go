package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"banksystem/internal/model"
	"banksystem/internal/repository"
	"banksystem/internal/security"

	"github.com/shopspring/decimal"
)

// AccountStore 账户存储，整体读取、整体保存
type AccountStore interface {
	Load(ctx context.Context) (map[int64]*model.Account, error)
	Save(ctx context.Context, accounts map[int64]*model.Account) error
}

// TransactionLog 只追加的流水存储
type TransactionLog interface {
	Append(ctx context.Context, records ...model.Transaction) error
	History(ctx context.Context, accountNumber int64) iter.Seq2[model.Transaction, error]
}

type AccountService struct {
	store       AccountStore
	hasher      security.PasswordHasher
	firstNumber int64
}

func NewAccountService(store AccountStore, hasher security.PasswordHasher, firstNumber int64) *AccountService {
	return &AccountService{
		store:       store,
		hasher:      hasher,
		firstNumber: firstNumber,
	}
}

// Create 开户：分配下一个账号，余额为0
func (s *AccountService) Create(ctx context.Context, name, password string, accType model.AccountType) (*model.Account, error) {
	name = strings.TrimSpace(name)
	if err := validateInput(createAccountInput{Name: name, Password: password}); err != nil {
		return nil, err
	}
	accType, err := model.ParseAccountType(string(accType))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	accounts, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取账户失败: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		Number:       repository.NextNumber(accounts, s.firstNumber),
		Name:         name,
		PasswordHash: digest,
		Balance:      decimal.Zero,
		Type:         accType,
	}
	accounts[account.Number] = account

	if err := s.store.Save(ctx, accounts); err != nil {
		return nil, fmt.Errorf("保存账户失败: %w", err)
	}

	slog.Info("开户成功", "account", account.Number, "type", account.Type)
	cp := *account
	return &cp, nil
}

// Authenticate 校验账号和密码
// 账号不存在与密码错误返回同一个 ErrAuthentication
func (s *AccountService) Authenticate(ctx context.Context, number int64, password string) (*model.Account, error) {
	accounts, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取账户失败: %w", err)
	}

	account, ok := accounts[number]
	if !ok || !s.hasher.Verify(password, account.PasswordHash) {
		slog.Warn("登录失败", "account", number)
		return nil, ErrAuthentication
	}
	return account, nil
}

// ChangePassword 校验旧密码后写入新密码的哈希
func (s *AccountService) ChangePassword(ctx context.Context, number int64, oldPassword, newPassword string) error {
	if err := validateInput(changePasswordInput{NewPassword: newPassword}); err != nil {
		return err
	}

	accounts, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("读取账户失败: %w", err)
	}
	account, ok := accounts[number]
	if !ok {
		return ErrAccountNotFound
	}
	if !s.hasher.Verify(oldPassword, account.PasswordHash) {
		return ErrAuthentication
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	account.PasswordHash = digest

	if err := s.store.Save(ctx, accounts); err != nil {
		return fmt.Errorf("保存账户失败: %w", err)
	}
	slog.Info("密码已修改", "account", number)
	return nil
}
