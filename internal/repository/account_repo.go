package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"banksystem/internal/model"
)

// accountFields account_no,name,password_hash,balance,acc_type
const accountFields = 5

// AccountRepository 账户文件，每行一个账户
// 每次读取整个文件，每次保存整体覆盖
type AccountRepository struct {
	path string
}

func NewAccountRepository(path string) *AccountRepository {
	return &AccountRepository{path: path}
}

func (r *AccountRepository) Path() string {
	return r.path
}

// Load 读取全部账户，文件不存在视为空
func (r *AccountRepository) Load(ctx context.Context) (map[int64]*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accounts := make(map[int64]*model.Account)

	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return accounts, nil
		}
		return nil, fmt.Errorf("打开账户文件失败: %w", err)
	}
	defer f.Close()

	rows := newRowReader(f)
	for {
		rec, line, err := rows.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, corruption(r.path, pe.Line, "%v", pe.Err)
			}
			return nil, fmt.Errorf("读取账户文件失败: %w", err)
		}

		account, err := decodeAccount(rec)
		if err != nil {
			return nil, corruption(r.path, line, "%v", err)
		}
		if _, dup := accounts[account.Number]; dup {
			return nil, corruption(r.path, line, "账号重复: %d", account.Number)
		}
		accounts[account.Number] = account
	}

	return accounts, nil
}

func decodeAccount(rec []string) (*model.Account, error) {
	if len(rec) != accountFields {
		return nil, fmt.Errorf("字段数为%d，应为%d", len(rec), accountFields)
	}
	number, err := parseAccountNumber(rec[0])
	if err != nil {
		return nil, fmt.Errorf("账号无效 %q: %w", rec[0], err)
	}
	balance, err := parseAmount(rec[3])
	if err != nil {
		return nil, fmt.Errorf("余额无效 %q: %w", rec[3], err)
	}
	if balance.IsNegative() {
		return nil, fmt.Errorf("余额为负: %s", rec[3])
	}
	accType, err := model.ParseAccountType(rec[4])
	if err != nil {
		return nil, err
	}
	return &model.Account{
		Number:       number,
		Name:         rec[1],
		PasswordHash: rec[2],
		Balance:      balance,
		Type:         accType,
	}, nil
}

func encodeAccount(a *model.Account) []string {
	return []string{
		formatAccountNumber(a.Number),
		a.Name,
		a.PasswordHash,
		FormatAmount(a.Balance),
		a.Type.String(),
	}
}

// Save 按账号顺序整体覆盖账户文件
// 先写入 .tmp 临时文件，再 rename 替换，写入中途失败不会破坏原文件
func (r *AccountRepository) Save(ctx context.Context, accounts map[int64]*model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	numbers := make([]int64, 0, len(accounts))
	for n := range accounts {
		numbers = append(numbers, n)
	}
	slices.Sort(numbers)

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return writeFailure(r.path, err)
		}
	}

	tmp := r.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return writeFailure(r.path, err)
	}

	w := csv.NewWriter(f)
	for _, n := range numbers {
		if err := w.Write(encodeAccount(accounts[n])); err != nil {
			f.Close()
			os.Remove(tmp)
			return writeFailure(r.path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(tmp)
		return writeFailure(r.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return writeFailure(r.path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return writeFailure(r.path, err)
	}

	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return writeFailure(r.path, err)
	}
	return nil
}

// NextNumber 下一个可用账号：现有最大账号 + 1，没有账户时返回 first
// 账户不会被删除，因此分配出去的账号不会被重复使用
func NextNumber(accounts map[int64]*model.Account, first int64) int64 {
	if len(accounts) == 0 {
		return first
	}
	var highest int64
	for n := range accounts {
		highest = max(highest, n)
	}
	return highest + 1
}
