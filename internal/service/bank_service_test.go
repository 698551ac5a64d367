package service

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"banksystem/internal/model"
	"banksystem/internal/repository"
	"banksystem/internal/security"

	"github.com/shopspring/decimal"
)

type fixture struct {
	bank     *BankService
	store    *repository.AccountRepository
	ledger   *repository.TransactionRepository
	events   *recordingPublisher
	clockNow time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		store:    repository.NewAccountRepository(filepath.Join(dir, "accounts.txt")),
		ledger:   repository.NewTransactionRepository(filepath.Join(dir, "transactions.txt")),
		events:   &recordingPublisher{},
		clockNow: time.Date(2025, 9, 14, 14, 46, 6, 223209000, time.Local),
	}
	accounts := NewAccountService(f.store, security.SHA256Hasher{}, 100001)
	f.bank = NewBankService(accounts, f.store, f.ledger,
		WithPublisher(f.events),
		WithClock(func() time.Time { return f.clockNow }),
	)
	return f
}

// open 开户并返回已登录的会话
func (f *fixture) open(t *testing.T, name, password string) (*Session, int64) {
	t.Helper()
	ctx := context.Background()
	acc, err := f.bank.CreateAccount(ctx, NewSession(), name, password, model.AccountTypeSavings)
	if err != nil {
		t.Fatalf("CreateAccount err=%v", err)
	}
	sess := NewSession()
	if _, err := f.bank.Login(ctx, sess, acc.Number, password); err != nil {
		t.Fatalf("Login err=%v", err)
	}
	return sess, acc.Number
}

func (f *fixture) balanceOf(t *testing.T, number int64) decimal.Decimal {
	t.Helper()
	accounts, err := f.store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	acc, ok := accounts[number]
	if !ok {
		t.Fatalf("account %d missing", number)
	}
	return acc.Balance
}

func (f *fixture) history(t *testing.T, number int64) []model.Transaction {
	t.Helper()
	txs, err := repository.Collect(f.ledger.History(context.Background(), number))
	if err != nil {
		t.Fatal(err)
	}
	return txs
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingPublisher struct {
	events []model.TransactionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e model.TransactionEvent) error {
	p.events = append(p.events, e)
	return p.err
}

// TestScenarioKirti 开户、存款、超额取款、向不存在的账户转账
func TestScenarioKirti(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	acc, err := f.bank.CreateAccount(ctx, NewSession(), "kirti", "pw1", model.AccountTypeSavings)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Number != 100001 || !acc.Balance.IsZero() {
		t.Fatalf("account=%+v want 100001 with zero balance", acc)
	}

	sess := NewSession()
	if _, err := f.bank.Login(ctx, sess, 100001, "pw1"); err != nil {
		t.Fatal(err)
	}

	bal, err := f.bank.Deposit(ctx, sess, dec("7000"))
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(dec("7000.0")) {
		t.Fatalf("balance=%s want 7000.0", bal)
	}
	txs := f.history(t, 100001)
	if len(txs) != 1 || txs[0].Type != model.TransactionTypeDeposit || !txs[0].Amount.Equal(dec("7000")) || txs[0].AccountNumber != 100001 {
		t.Fatalf("history=%+v", txs)
	}

	if _, err := f.bank.Withdraw(ctx, sess, dec("8000")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if got := f.balanceOf(t, 100001); !got.Equal(dec("7000")) {
		t.Fatalf("balance after failed withdraw=%s", got)
	}

	if _, err := f.bank.Transfer(ctx, sess, 999999, dec("2000")); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
	if got := f.balanceOf(t, 100001); !got.Equal(dec("7000")) {
		t.Fatalf("balance after failed transfer=%s", got)
	}
	if n := len(f.history(t, 100001)); n != 1 {
		t.Fatalf("failed operations must not append rows, got %d", n)
	}
}

func TestDepositProperty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, number := f.open(t, "a", "pw")

	want := decimal.Zero
	for i, a := range []string{"0.01", "1", "250.5", "99999.99"} {
		pre := f.balanceOf(t, number)
		got, err := f.bank.Deposit(ctx, sess, dec(a))
		if err != nil {
			t.Fatal(err)
		}
		want = want.Add(dec(a))
		if !got.Equal(pre.Add(dec(a))) || !got.Equal(want) {
			t.Fatalf("deposit %s: balance=%s want %s", a, got, want)
		}
		txs := f.history(t, number)
		if len(txs) != i+1 {
			t.Fatalf("rows=%d want %d", len(txs), i+1)
		}
		last := txs[len(txs)-1]
		if last.Type != model.TransactionTypeDeposit || !last.Amount.Equal(dec(a)) || last.TargetAccount != 0 {
			t.Fatalf("last row=%+v", last)
		}
	}
	if len(f.events.events) != 4 {
		t.Fatalf("events=%d want 4", len(f.events.events))
	}
}

func TestInvalidAmounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, number := f.open(t, "a", "pw")
	_, other := f.open(t, "b", "pw")

	for _, a := range []string{"0", "-1", "-0.01"} {
		if _, err := f.bank.Deposit(ctx, sess, dec(a)); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("deposit %s: want ErrInvalidAmount, got %v", a, err)
		}
		if _, err := f.bank.Withdraw(ctx, sess, dec(a)); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("withdraw %s: want ErrInvalidAmount, got %v", a, err)
		}
		if _, err := f.bank.Transfer(ctx, sess, other, dec(a)); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("transfer %s: want ErrInvalidAmount, got %v", a, err)
		}
	}
	if n := len(f.history(t, number)); n != 0 {
		t.Fatalf("rows=%d want 0", n)
	}
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, number := f.open(t, "a", "pw")
	if _, err := f.bank.Deposit(ctx, sess, dec("100")); err != nil {
		t.Fatal(err)
	}

	bal, err := f.bank.Withdraw(ctx, sess, dec("30.5"))
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(dec("69.5")) {
		t.Fatalf("balance=%s want 69.5", bal)
	}

	// 取光余额是允许的
	bal, err = f.bank.Withdraw(ctx, sess, dec("69.5"))
	if err != nil {
		t.Fatal(err)
	}
	if !bal.IsZero() {
		t.Fatalf("balance=%s want 0", bal)
	}

	if _, err := f.bank.Withdraw(ctx, sess, dec("0.01")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if got := f.balanceOf(t, number); !got.IsZero() {
		t.Fatalf("balance=%s want 0", got)
	}

	txs := f.history(t, number)
	if len(txs) != 3 || txs[1].Type != model.TransactionTypeWithdraw || !txs[1].Amount.Equal(dec("30.5")) {
		t.Fatalf("history=%+v", txs)
	}
}

func TestTransferConservesAndWritesPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src, a := f.open(t, "a", "pw")
	_, b := f.open(t, "b", "pw")
	if _, err := f.bank.Deposit(ctx, src, dec("1000")); err != nil {
		t.Fatal(err)
	}
	f.events.events = nil

	total := f.balanceOf(t, a).Add(f.balanceOf(t, b))
	bal, err := f.bank.Transfer(ctx, src, b, dec("300.25"))
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(dec("699.75")) || !f.balanceOf(t, a).Equal(dec("699.75")) {
		t.Fatalf("source balance=%s", f.balanceOf(t, a))
	}
	if !f.balanceOf(t, b).Equal(dec("300.25")) {
		t.Fatalf("target balance=%s", f.balanceOf(t, b))
	}
	if got := f.balanceOf(t, a).Add(f.balanceOf(t, b)); !got.Equal(total) {
		t.Fatalf("total=%s want %s", got, total)
	}

	// 目标账户的历史包含转出方的转出记录和自己的转入记录
	hb := f.history(t, b)
	if len(hb) != 2 {
		t.Fatalf("target history=%+v", hb)
	}
	out, in := hb[0], hb[1]
	if out.Type != model.TransactionTypeTransferOut || out.AccountNumber != a || out.TargetAccount != b {
		t.Fatalf("out=%+v", out)
	}
	if in.Type != model.TransactionTypeTransferIn || in.AccountNumber != b || in.TargetAccount != a {
		t.Fatalf("in=%+v", in)
	}
	if !out.Amount.Equal(dec("300.25")) || !in.Amount.Equal(dec("300.25")) {
		t.Fatalf("amounts out=%s in=%s", out.Amount, in.Amount)
	}
	if len(f.events.events) != 2 {
		t.Fatalf("events=%d want 2", len(f.events.events))
	}
}

func TestTransferRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src, a := f.open(t, "a", "pw")
	_, b := f.open(t, "b", "pw")
	if _, err := f.bank.Deposit(ctx, src, dec("10")); err != nil {
		t.Fatal(err)
	}

	if _, err := f.bank.Transfer(ctx, src, a, dec("1")); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("self transfer: want ErrInvalidOperation, got %v", err)
	}
	if _, err := f.bank.Transfer(ctx, src, b, dec("10.01")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if !f.balanceOf(t, a).Equal(dec("10")) || !f.balanceOf(t, b).IsZero() {
		t.Fatalf("balances changed: a=%s b=%s", f.balanceOf(t, a), f.balanceOf(t, b))
	}
	if n := len(f.history(t, b)); n != 0 {
		t.Fatalf("target rows=%d want 0", n)
	}
}

func TestBalanceReflectsOtherSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sa, _ := f.open(t, "a", "pw")
	sb, b := f.open(t, "b", "pw")
	if _, err := f.bank.Deposit(ctx, sa, dec("50")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.bank.Transfer(ctx, sa, b, dec("20")); err != nil {
		t.Fatal(err)
	}
	bal, err := f.bank.Balance(ctx, sb)
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(dec("20")) {
		t.Fatalf("balance=%s want 20", bal)
	}
}

func TestLoggedOutOperationsRequireLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := NewSession()

	checks := map[string]error{}
	_, checks["deposit"] = f.bank.Deposit(ctx, sess, dec("1"))
	_, checks["withdraw"] = f.bank.Withdraw(ctx, sess, dec("1"))
	_, checks["transfer"] = f.bank.Transfer(ctx, sess, 100001, dec("1"))
	_, checks["balance"] = f.bank.Balance(ctx, sess)
	_, checks["history"] = f.bank.History(ctx, sess)
	checks["logout"] = f.bank.Logout(sess)
	checks["change password"] = f.bank.ChangePassword(ctx, sess, "a", "b")

	for op, err := range checks {
		if !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("%s: want ErrNotAuthenticated, got %v", op, err)
		}
	}
}

func TestLoginLogoutTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, number := f.open(t, "a", "pw")

	if sess.State() != StateLoggedIn || sess.AccountNumber() != number || sess.Name() != "a" {
		t.Fatalf("session=%+v", sess)
	}
	if _, err := f.bank.Login(ctx, sess, number, "pw"); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("login while logged in: want ErrInvalidOperation, got %v", err)
	}
	if _, err := f.bank.CreateAccount(ctx, sess, "x", "pw", model.AccountTypeCurrent); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("create while logged in: want ErrInvalidOperation, got %v", err)
	}
	if err := f.bank.Logout(sess); err != nil {
		t.Fatal(err)
	}
	if sess.State() != StateLoggedOut || sess.AccountNumber() != 0 {
		t.Fatalf("session after logout=%+v", sess)
	}
}

func TestLoginFailureStaysLoggedOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, number := f.open(t, "a", "pw")

	sess := NewSession()
	if _, err := f.bank.Login(ctx, sess, number, "wrong"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("want ErrAuthentication, got %v", err)
	}
	if _, err := f.bank.Login(ctx, sess, 424242, "pw"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("unknown account: want ErrAuthentication, got %v", err)
	}
	if sess.State() != StateLoggedOut {
		t.Fatalf("state=%s", sess.State())
	}
}

func TestHistoryOfLoggedInAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sa, a := f.open(t, "a", "pw")
	sb, _ := f.open(t, "b", "pw")
	if _, err := f.bank.Deposit(ctx, sa, dec("5")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.bank.Deposit(ctx, sb, dec("7")); err != nil {
		t.Fatal(err)
	}

	seq, err := f.bank.History(ctx, sa)
	if err != nil {
		t.Fatal(err)
	}
	txs, err := repository.Collect(seq)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].AccountNumber != a || !txs[0].Timestamp.Equal(f.clockNow) {
		t.Fatalf("history=%+v", txs)
	}
}

func TestChangePasswordThroughSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, number := f.open(t, "a", "old")

	if err := f.bank.ChangePassword(ctx, sess, "nope", "new"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("want ErrAuthentication, got %v", err)
	}
	if err := f.bank.ChangePassword(ctx, sess, "old", "new"); err != nil {
		t.Fatal(err)
	}
	if err := f.bank.Logout(sess); err != nil {
		t.Fatal(err)
	}
	if _, err := f.bank.Login(ctx, sess, number, "old"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("old password: want ErrAuthentication, got %v", err)
	}
	if _, err := f.bank.Login(ctx, sess, number, "new"); err != nil {
		t.Fatalf("new password: %v", err)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	sess, number := f.open(t, "a", "pw")

	if _, err := f.bank.Deposit(ctx, sess, dec("1")); err != nil {
		t.Fatalf("deposit should succeed, got %v", err)
	}
	if n := len(f.history(t, number)); n != 1 {
		t.Fatalf("rows=%d want 1", n)
	}
}

type failingLedger struct {
	err error
}

func (l failingLedger) Append(context.Context, ...model.Transaction) error { return l.err }

func (l failingLedger) History(context.Context, int64) iter.Seq2[model.Transaction, error] {
	return func(func(model.Transaction, error) bool) {}
}

// 账户已保存而流水追加失败：余额变更保留，错误上报
func TestAppendFailureAfterSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, number := f.open(t, "a", "pw")

	appendErr := errors.New("disk full")
	bank := NewBankService(NewAccountService(f.store, security.SHA256Hasher{}, 100001), f.store, failingLedger{err: appendErr})
	sess := NewSession()
	if _, err := bank.Login(ctx, sess, number, "pw"); err != nil {
		t.Fatal(err)
	}

	if _, err := bank.Deposit(ctx, sess, dec("5")); !errors.Is(err, appendErr) {
		t.Fatalf("want append error, got %v", err)
	}
	if got := f.balanceOf(t, number); !got.Equal(dec("5")) {
		t.Fatalf("balance=%s want 5", got)
	}
}

type failingStore struct {
	AccountStore
	saveErr error
}

func (s failingStore) Save(context.Context, map[int64]*model.Account) error { return s.saveErr }

func TestSaveFailureAppendsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, number := f.open(t, "a", "pw")

	store := failingStore{AccountStore: f.store, saveErr: repository.ErrStorageWrite}
	bank := NewBankService(NewAccountService(store, security.SHA256Hasher{}, 100001), store, f.ledger)
	sess := NewSession()
	if _, err := bank.Login(ctx, sess, number, "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := bank.Deposit(ctx, sess, dec("5")); !errors.Is(err, repository.ErrStorageWrite) {
		t.Fatalf("want ErrStorageWrite, got %v", err)
	}
	if n := len(f.history(t, number)); n != 0 {
		t.Fatalf("rows=%d want 0", n)
	}
	if got := f.balanceOf(t, number); !got.IsZero() {
		t.Fatalf("balance=%s want 0", got)
	}
}

func TestSessionAccountRemovedFromStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, number := f.open(t, "kirti", "pw")
	_, other := f.open(t, "amit", "pw")
	if _, err := f.bank.Deposit(ctx, sess, dec("100")); err != nil {
		t.Fatal(err)
	}

	// 账户文件被外部改写，已登录账户不复存在
	accounts, err := f.store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	delete(accounts, number)
	if err := f.store.Save(ctx, accounts); err != nil {
		t.Fatal(err)
	}
	rows := len(f.history(t, number))
	events := len(f.events.events)

	ops := map[string]func() error{
		"deposit": func() error {
			_, err := f.bank.Deposit(ctx, sess, dec("1"))
			return err
		},
		"withdraw": func() error {
			_, err := f.bank.Withdraw(ctx, sess, dec("1"))
			return err
		},
		"transfer": func() error {
			_, err := f.bank.Transfer(ctx, sess, other, dec("1"))
			return err
		},
		"balance": func() error {
			_, err := f.bank.Balance(ctx, sess)
			return err
		},
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("%s: want ErrAccountNotFound, got %v", name, err)
		}
	}

	if got := len(f.history(t, number)); got != rows {
		t.Fatalf("rows appended: %d -> %d", rows, got)
	}
	if got := len(f.events.events); got != events {
		t.Fatalf("events published: %d -> %d", events, got)
	}
	if !f.balanceOf(t, other).IsZero() {
		t.Fatalf("other account balance changed: %s", f.balanceOf(t, other))
	}
}
