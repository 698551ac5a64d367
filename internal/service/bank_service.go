package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"banksystem/internal/model"

	"github.com/shopspring/decimal"
)

// EventPublisher 流水落盘后发布事件
type EventPublisher interface {
	Publish(ctx context.Context, event model.TransactionEvent) error
}

// BankService 会话上的各项操作
//
// 每个改变余额的操作都按同一顺序执行：
//  1. 读取全部账户
//  2. 校验并在内存中修改
//  3. 整体保存账户文件
//  4. 追加流水
//  5. 发布事件（失败只记日志）
//
// 第3步与第4步之间崩溃会留下没有流水的余额变更，这是已知并接受的窗口。
type BankService struct {
	accounts  *AccountService
	store     AccountStore
	ledger    TransactionLog
	publisher EventPublisher
	now       func() time.Time
}

type Option func(*BankService)

// WithClock 替换流水时间来源
func WithClock(now func() time.Time) Option {
	return func(s *BankService) { s.now = now }
}

// WithPublisher 设置事件发布方，默认不发布
func WithPublisher(p EventPublisher) Option {
	return func(s *BankService) { s.publisher = p }
}

func NewBankService(accounts *AccountService, store AccountStore, ledger TransactionLog, opts ...Option) *BankService {
	s := &BankService{
		accounts: accounts,
		store:    store,
		ledger:   ledger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAccount 开户，不会自动登录
func (s *BankService) CreateAccount(ctx context.Context, sess *Session, name, password string, accType model.AccountType) (*model.Account, error) {
	if _, err := sess.require(OpCreateAccount); err != nil {
		return nil, err
	}
	return s.accounts.Create(ctx, name, password, accType)
}

// Login 登录成功后会话进入 LoggedIn
func (s *BankService) Login(ctx context.Context, sess *Session, number int64, password string) (*model.Account, error) {
	if _, err := sess.require(OpLogin); err != nil {
		return nil, err
	}
	account, err := s.accounts.Authenticate(ctx, number, password)
	if err != nil {
		return nil, err
	}
	sess.login(account.Number, account.Name)
	slog.Info("登录成功", "account", account.Number)
	return account, nil
}

func (s *BankService) Logout(sess *Session) error {
	number, err := sess.require(OpLogout)
	if err != nil {
		return err
	}
	sess.logout()
	slog.Info("已退出登录", "account", number)
	return nil
}

// Deposit 存款，返回存款后余额
func (s *BankService) Deposit(ctx context.Context, sess *Session, amount decimal.Decimal) (decimal.Decimal, error) {
	number, err := sess.require(OpDeposit)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	accounts, account, err := s.loadOwn(ctx, number)
	if err != nil {
		return decimal.Zero, err
	}

	account.Balance = account.Balance.Add(amount)
	if err := s.store.Save(ctx, accounts); err != nil {
		return decimal.Zero, fmt.Errorf("保存账户失败: %w", err)
	}

	err = s.record(ctx, model.Transaction{
		AccountNumber: number,
		Type:          model.TransactionTypeDeposit,
		Amount:        amount,
		Timestamp:     s.now(),
	})
	if err != nil {
		return account.Balance, err
	}

	slog.Info("存款成功", "account", number, "amount", amount.String(), "balance", account.Balance.String())
	return account.Balance, nil
}

// Withdraw 取款，余额不足时不做任何修改
func (s *BankService) Withdraw(ctx context.Context, sess *Session, amount decimal.Decimal) (decimal.Decimal, error) {
	number, err := sess.require(OpWithdraw)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	accounts, account, err := s.loadOwn(ctx, number)
	if err != nil {
		return decimal.Zero, err
	}
	if !account.CanDebit(amount) {
		return account.Balance, ErrInsufficientFunds
	}

	account.Balance = account.Balance.Sub(amount)
	if err := s.store.Save(ctx, accounts); err != nil {
		return decimal.Zero, fmt.Errorf("保存账户失败: %w", err)
	}

	err = s.record(ctx, model.Transaction{
		AccountNumber: number,
		Type:          model.TransactionTypeWithdraw,
		Amount:        amount,
		Timestamp:     s.now(),
	})
	if err != nil {
		return account.Balance, err
	}

	slog.Info("取款成功", "account", number, "amount", amount.String(), "balance", account.Balance.String())
	return account.Balance, nil
}

// Transfer 转账，双方余额在同一次保存中落盘，随后追加转出、转入两条流水
func (s *BankService) Transfer(ctx context.Context, sess *Session, target int64, amount decimal.Decimal) (decimal.Decimal, error) {
	number, err := sess.require(OpTransfer)
	if err != nil {
		return decimal.Zero, err
	}
	if target == number {
		return decimal.Zero, fmt.Errorf("%w: 不能向自己转账", ErrInvalidOperation)
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	accounts, from, err := s.loadOwn(ctx, number)
	if err != nil {
		return decimal.Zero, err
	}
	to, ok := accounts[target]
	if !ok {
		return from.Balance, fmt.Errorf("%w: %d", ErrAccountNotFound, target)
	}
	if !from.CanDebit(amount) {
		return from.Balance, ErrInsufficientFunds
	}

	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(amount)
	if err := s.store.Save(ctx, accounts); err != nil {
		return decimal.Zero, fmt.Errorf("保存账户失败: %w", err)
	}

	out, in := model.NewTransferPair(number, target, amount, s.now())
	if err := s.record(ctx, out, in); err != nil {
		return from.Balance, err
	}

	slog.Info("转账成功", "from", number, "to", target, "amount", amount.String())
	return from.Balance, nil
}

// Balance 重新读取账户文件，返回当前余额
func (s *BankService) Balance(ctx context.Context, sess *Session) (decimal.Decimal, error) {
	number, err := sess.require(OpBalance)
	if err != nil {
		return decimal.Zero, err
	}
	_, account, err := s.loadOwn(ctx, number)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// History 当前账户的流水，按写入顺序
func (s *BankService) History(ctx context.Context, sess *Session) (iter.Seq2[model.Transaction, error], error) {
	number, err := sess.require(OpHistory)
	if err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, number), nil
}

// ChangePassword 修改当前账户的密码，不产生流水
func (s *BankService) ChangePassword(ctx context.Context, sess *Session, oldPassword, newPassword string) error {
	number, err := sess.require(OpChangePassword)
	if err != nil {
		return err
	}
	return s.accounts.ChangePassword(ctx, number, oldPassword, newPassword)
}

// loadOwn 读取全部账户并取出会话所属账户
func (s *BankService) loadOwn(ctx context.Context, number int64) (map[int64]*model.Account, *model.Account, error) {
	accounts, err := s.store.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("读取账户失败: %w", err)
	}
	account, ok := accounts[number]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrAccountNotFound, number)
	}
	return accounts, account, nil
}

// record 追加流水并发布事件
// 账户已经保存，追加失败时返回错误但不回滚余额
func (s *BankService) record(ctx context.Context, records ...model.Transaction) error {
	if err := s.ledger.Append(ctx, records...); err != nil {
		slog.Error("追加流水失败，余额已保存", "error", err)
		return fmt.Errorf("追加流水失败: %w", err)
	}
	if s.publisher == nil {
		return nil
	}
	for _, t := range records {
		event := model.NewTransactionEvent(t)
		if err := s.publisher.Publish(ctx, event); err != nil {
			slog.Warn("发布交易事件失败", "event_id", event.EventID, "account", t.AccountNumber, "error", err)
		}
	}
	return nil
}
