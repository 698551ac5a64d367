package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"banksystem/internal/model"
)

// 非转账流水 4 个字段，转账流水多一个对方账号
// account_no,type,amount,timestamp[,target_account_no]
const (
	transactionFields         = 4
	transferTransactionFields = 5
)

// TransactionRepository 流水文件，只追加，不修改，不删除
type TransactionRepository struct {
	path string
}

func NewTransactionRepository(path string) *TransactionRepository {
	return &TransactionRepository{path: path}
}

func (r *TransactionRepository) Path() string {
	return r.path
}

// Append 追加流水
// 多条流水（转账的两条）编码后一次性写入
func (r *TransactionRepository) Append(ctx context.Context, records ...model.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, t := range records {
		if err := w.Write(encodeTransaction(t)); err != nil {
			return writeFailure(r.path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return writeFailure(r.path, err)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return writeFailure(r.path, err)
		}
	}

	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return writeFailure(r.path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return writeFailure(r.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return writeFailure(r.path, err)
	}
	if err := f.Close(); err != nil {
		return writeFailure(r.path, err)
	}
	return nil
}

func encodeTransaction(t model.Transaction) []string {
	rec := []string{
		formatAccountNumber(t.AccountNumber),
		string(t.Type),
		FormatAmount(t.Amount),
		t.Timestamp.Format(TimestampLayout),
	}
	if t.Type.IsTransfer() {
		rec = append(rec, formatAccountNumber(t.TargetAccount))
	}
	return rec
}

func decodeTransaction(rec []string) (model.Transaction, error) {
	var t model.Transaction
	if len(rec) != transactionFields && len(rec) != transferTransactionFields {
		return t, fmt.Errorf("字段数为%d，应为%d或%d", len(rec), transactionFields, transferTransactionFields)
	}

	number, err := parseAccountNumber(rec[0])
	if err != nil {
		return t, fmt.Errorf("账号无效 %q: %w", rec[0], err)
	}
	txType, err := model.ParseTransactionType(rec[1])
	if err != nil {
		return t, err
	}
	amount, err := parseAmount(rec[2])
	if err != nil {
		return t, fmt.Errorf("金额无效 %q: %w", rec[2], err)
	}
	if !amount.IsPositive() {
		return t, fmt.Errorf("金额必须大于0: %s", rec[2])
	}
	ts, err := parseTimestamp(rec[3])
	if err != nil {
		return t, fmt.Errorf("时间无效 %q: %w", rec[3], err)
	}

	t = model.Transaction{
		AccountNumber: number,
		Type:          txType,
		Amount:        amount,
		Timestamp:     ts,
	}

	switch {
	case txType.IsTransfer() && len(rec) != transferTransactionFields:
		return t, fmt.Errorf("%s 流水缺少对方账号", txType)
	case !txType.IsTransfer() && len(rec) == transferTransactionFields && rec[4] != "":
		return t, fmt.Errorf("%s 流水不应有对方账号", txType)
	case txType.IsTransfer():
		target, err := parseAccountNumber(rec[4])
		if err != nil {
			return t, fmt.Errorf("对方账号无效 %q: %w", rec[4], err)
		}
		t.TargetAccount = target
	}
	return t, nil
}

// rowInvolves 只看账号列判断该行是否与账户相关
// 账号列本身无法解析时无法归属，返回错误
func rowInvolves(rec []string, accountNumber int64) (bool, error) {
	number, err := parseAccountNumber(rec[0])
	if err != nil {
		return false, fmt.Errorf("账号无效 %q: %w", rec[0], err)
	}
	if number == accountNumber {
		return true, nil
	}
	if len(rec) < transferTransactionFields || rec[4] == "" {
		return false, nil
	}
	target, err := parseAccountNumber(rec[4])
	if err != nil {
		return false, fmt.Errorf("对方账号无效 %q: %w", rec[4], err)
	}
	return target == accountNumber, nil
}

// History 按写入顺序返回与账户相关的流水（本账户的流水，或以本账户为对方的流水）
//
// 返回的序列是惰性的，每次遍历都会重新读取文件。
// 遇到与本账户相关的损坏行时产出 ErrStorageCorruption 并结束遍历；
// 其他账户的行只校验账号列。
func (r *TransactionRepository) History(ctx context.Context, accountNumber int64) iter.Seq2[model.Transaction, error] {
	return func(yield func(model.Transaction, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(model.Transaction{}, err)
			return
		}

		f, err := os.Open(r.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return
			}
			yield(model.Transaction{}, fmt.Errorf("打开流水文件失败: %w", err))
			return
		}
		defer f.Close()

		rows := newRowReader(f)
		for {
			rec, line, err := rows.next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var pe *csv.ParseError
				if errors.As(err, &pe) {
					err = corruption(r.path, pe.Line, "%v", pe.Err)
				} else {
					err = fmt.Errorf("读取流水文件失败: %w", err)
				}
				yield(model.Transaction{}, err)
				return
			}

			related, err := rowInvolves(rec, accountNumber)
			if err != nil {
				yield(model.Transaction{}, corruption(r.path, line, "%v", err))
				return
			}
			if !related {
				continue
			}
			t, err := decodeTransaction(rec)
			if err != nil {
				yield(model.Transaction{}, corruption(r.path, line, "%v", err))
				return
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// Collect 将 History 读取为切片，遇到第一个错误即返回
func Collect(seq iter.Seq2[model.Transaction, error]) ([]model.Transaction, error) {
	var out []model.Transaction
	for t, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, nil
}
