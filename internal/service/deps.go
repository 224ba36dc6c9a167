package service

import (
	"context"
	"time"

	"usdt-order-pay/internal/model"
	"usdt-order-pay/internal/mq"
	"usdt-order-pay/internal/repository"
	"usdt-order-pay/pkg/trongrid"
)

// LedgerClient 链上账本索引服务（TronGrid）
type LedgerClient interface {
	FetchRecentTransfers(ctx context.Context, address string, minTimestamp int64) ([]trongrid.Transfer, error)
}

// Notifier 订单状态通知，尽力而为，失败只记录日志
type Notifier interface {
	PublishOrderNotify(msg *mq.OrderNotifyMessage) error
}

// TransactionStore 支付流水存储
type TransactionStore interface {
	ExistsByTransferID(transferID string) (bool, error)
	ConfirmPayment(ptx *model.PaymentTransaction) (bool, error)
}

// OrderStore 对账引擎用到的订单存储切面
type OrderStore interface {
	FindPendingCrypto(now time.Time) ([]model.Order, error)
	FindExpiredPending(now time.Time) ([]model.Order, error)
	MarkExpired(orderID int64, now time.Time) (bool, error)
}

// OrderAdminStore 订单创建与管理存储
type OrderAdminStore interface {
	NextSequenceCode() (string, error)
	Create(order *model.Order) error
	FindByOrderNo(orderNo string) (*model.Order, error)
	UpdateStatusFrom(orderID int64, from, to int16) (bool, error)
	ListOrders(filter repository.OrderFilter) ([]model.Order, int64, error)
}
