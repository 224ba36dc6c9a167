package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// TxStatusConfirmed 支付流水唯一的终态，写入即确认
	TxStatusConfirmed = int16(1)
)

// PaymentTransaction 已确认的链上支付流水
// TransferID 的唯一索引是整个对账流程的幂等闸门：同一笔转账，永远只落一条流水
type PaymentTransaction struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransferID     string          `gorm:"type:varchar(128);uniqueIndex;not null" json:"transfer_id"`
	OrderID        int64           `gorm:"not null;index" json:"order_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(30,6);not null" json:"amount"`
	FromAddress    string          `gorm:"type:varchar(64);not null" json:"from_address"`
	ToAddress      string          `gorm:"type:varchar(64);not null" json:"to_address"`
	TokenSymbol    string          `gorm:"type:varchar(16);not null" json:"token_symbol"`
	RawValue       string          `gorm:"type:varchar(40);not null" json:"raw_value"`
	Decimals       int             `gorm:"not null;default:6" json:"decimals"`
	Status         int16           `gorm:"type:smallint;not null;default:1" json:"status"`
	BlockTimestamp int64           `gorm:"not null;index:,sort:desc" json:"block_timestamp"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
