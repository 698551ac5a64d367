package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionEvent 流水写入成功后对外发布的事件
type TransactionEvent struct {
	EventID       string          `json:"event_id"`
	AccountNumber int64           `json:"account_number"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	TargetAccount int64           `json:"target_account_number,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewTransactionEvent 由已落盘的流水生成事件，每个事件有唯一 ID
func NewTransactionEvent(t Transaction) TransactionEvent {
	return TransactionEvent{
		EventID:       uuid.NewString(),
		AccountNumber: t.AccountNumber,
		Type:          t.Type,
		Amount:        t.Amount,
		TargetAccount: t.TargetAccount,
		Timestamp:     t.Timestamp,
	}
}

// Key 消息键，同一账户的事件落在同一分区，保证顺序
func (e TransactionEvent) Key() string {
	return strconv.FormatInt(e.AccountNumber, 10)
}
