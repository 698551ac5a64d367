package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "Deposit"
	TransactionTypeWithdraw    TransactionType = "Withdraw"
	TransactionTypeTransferOut TransactionType = "Transfer-Out"
	TransactionTypeTransferIn  TransactionType = "Transfer-In"
)

// ParseTransactionType 解析流水文件中的交易类型
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(s); t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeTransferOut, TransactionTypeTransferIn:
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// IsTransfer 转账流水必须带对方账号
func (t TransactionType) IsTransfer() bool {
	return t == TransactionTypeTransferOut || t == TransactionTypeTransferIn
}

// ============================================================================
// 账户流水实体
// ============================================================================

// Transaction 账户流水
//
// 流水设计原则：
// 1. 只追加，不修改，不删除
// 2. 必须在账户余额落盘之后写入
// 3. 转账产生两条流水，分别属于转出方和转入方，并互相引用对方账号
type Transaction struct {
	AccountNumber int64           `json:"account_number"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
	TargetAccount int64           `json:"target_account_number,omitempty"` // 非转账时为 0
}

// Involves 流水是否与账户相关（属于该账户或以该账户为对方）
func (t Transaction) Involves(accountNumber int64) bool {
	return t.AccountNumber == accountNumber || (t.TargetAccount != 0 && t.TargetAccount == accountNumber)
}

// NewTransferPair 生成一次转账对应的转出、转入两条流水
func NewTransferPair(from, to int64, amount decimal.Decimal, at time.Time) (out, in Transaction) {
	out = Transaction{
		AccountNumber: from,
		Type:          TransactionTypeTransferOut,
		Amount:        amount,
		Timestamp:     at,
		TargetAccount: to,
	}
	in = Transaction{
		AccountNumber: to,
		Type:          TransactionTypeTransferIn,
		Amount:        amount,
		Timestamp:     at,
		TargetAccount: from,
	}
	return out, in
}
