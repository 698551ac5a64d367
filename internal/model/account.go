package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AccountType 账户类型
type AccountType string

const (
	AccountTypeSavings AccountType = "Savings"
	AccountTypeCurrent AccountType = "Current"
)

// ParseAccountType 解析账户类型，大小写不敏感
// 历史文件里存在 "Saving" 的写法，一并识别为 Savings
func ParseAccountType(s string) (AccountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "savings", "saving":
		return AccountTypeSavings, nil
	case "current":
		return AccountTypeCurrent, nil
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

func (t AccountType) String() string {
	return string(t)
}

// Account 银行账户
// 账户只会被创建和原地修改，不会被删除
type Account struct {
	Number       int64           `json:"account_number"`
	Name         string          `json:"name"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `json:"balance"` // 不允许因取款或转账变为负数
	Type         AccountType     `json:"type"`
}

// CanDebit 余额是否足以支付 amount
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}
