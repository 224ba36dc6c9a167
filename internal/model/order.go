package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending        = int16(0) // 待支付
	OrderStatusPaid           = int16(1) // 已支付
	OrderStatusExpired        = int16(2) // 已过期
	OrderStatusCancelled      = int16(3) // 已取消
	OrderStatusPreparing      = int16(4) // 备餐中
	OrderStatusOutForDelivery = int16(5) // 配送中
	OrderStatusDelivered      = int16(6) // 已送达
)

const (
	PaymentMethodOther  = int16(0) // 非加密货币支付
	PaymentMethodCrypto = int16(1) // 加密货币支付（USDT）
)

// legalTransitions 订单状态机，只允许前向流转
// pending 只能走向 paid / expired / cancelled，paid 永远不会退回 pending
var legalTransitions = map[int16][]int16{
	OrderStatusPending:        {OrderStatusPaid, OrderStatusExpired, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:      {OrderStatusOutForDelivery, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
	OrderStatusDelivered:      {},
	OrderStatusCancelled:      {},
	OrderStatusExpired:        {},
}

// CanTransition 检查状态流转是否合法
func CanTransition(from, to int16) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusText 状态码的中文描述
func StatusText(status int16) string {
	switch status {
	case OrderStatusPending:
		return "待支付"
	case OrderStatusPaid:
		return "已支付"
	case OrderStatusExpired:
		return "已过期"
	case OrderStatusCancelled:
		return "已取消"
	case OrderStatusPreparing:
		return "备餐中"
	case OrderStatusOutForDelivery:
		return "配送中"
	case OrderStatusDelivered:
		return "已送达"
	default:
		return "未知"
	}
}

type Order struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo       string          `gorm:"type:varchar(18);uniqueIndex;not null" json:"order_no"`
	SequenceCode  string          `gorm:"type:varchar(6);uniqueIndex;not null" json:"sequence_code"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"total_amount"`
	PaymentMethod int16           `gorm:"type:smallint;not null;default:0" json:"payment_method"`
	Status        int16           `gorm:"type:smallint;not null;default:0;index:idx_status_expires" json:"status"`

	// 以下字段仅在 PaymentMethod = crypto 时有值
	RequestedAmount decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"requested_amount"`
	ReceivedAmount  decimal.Decimal `gorm:"type:decimal(30,6);not null;default:0" json:"received_amount"`
	TransferID      string          `gorm:"type:varchar(128);default:''" json:"transfer_id"`
	WalletAddress   string          `gorm:"type:varchar(64);default:''" json:"wallet_address"`
	ExpiresAt       time.Time       `gorm:"index:idx_status_expires" json:"expires_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Order) TableName() string {
	return "orders"
}

// IsCryptoPayable 订单是否具备参与链上对账的条件
// 历史脏数据可能缺少加密支付字段，对账时跳过
func (o *Order) IsCryptoPayable() bool {
	return o.PaymentMethod == PaymentMethodCrypto &&
		o.SequenceCode != "" &&
		o.WalletAddress != "" &&
		o.RequestedAmount.IsPositive() &&
		!o.ExpiresAt.IsZero()
}

// OrderCounter 订单序号计数器（单行表，行锁保证序号单调且唯一）
type OrderCounter struct {
	ID    int16 `gorm:"primaryKey"`
	Value int64 `gorm:"not null;default:0"`
}

func (OrderCounter) TableName() string {
	return "order_counters"
}
