package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"usdt-order-pay/internal/model"
	"usdt-order-pay/internal/mq"
	"usdt-order-pay/internal/ordercode"
	"usdt-order-pay/internal/repository"
	"usdt-order-pay/pkg/trongrid"

	"gorm.io/gorm"
)

// fakeStore 内存版订单/流水存储，模拟数据库的唯一索引与条件更新语义
type fakeStore struct {
	orders  map[int64]*model.Order
	txs     map[string]*model.PaymentTransaction
	counter int64
	nextID  int64

	confirmErr error
	existsErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders: make(map[int64]*model.Order),
		txs:    make(map[string]*model.PaymentTransaction),
	}
}

func (f *fakeStore) addOrder(o model.Order) *model.Order {
	if o.ID == 0 {
		f.nextID++
		o.ID = f.nextID
	} else if o.ID > f.nextID {
		f.nextID = o.ID
	}
	cp := o
	f.orders[cp.ID] = &cp
	return &cp
}

func (f *fakeStore) ExistsByTransferID(transferID string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.txs[transferID]
	return ok, nil
}

func (f *fakeStore) ConfirmPayment(ptx *model.PaymentTransaction) (bool, error) {
	if f.confirmErr != nil {
		return false, f.confirmErr
	}
	if _, ok := f.txs[ptx.TransferID]; ok {
		// 唯一索引冲突，无操作
		return false, nil
	}
	order, ok := f.orders[ptx.OrderID]
	if !ok || order.Status != model.OrderStatusPending {
		return false, fmt.Errorf("订单 %d 已不是待支付状态，放弃确认", ptx.OrderID)
	}
	cp := *ptx
	f.txs[ptx.TransferID] = &cp
	order.Status = model.OrderStatusPaid
	order.ReceivedAmount = ptx.Amount
	order.TransferID = ptx.TransferID
	return true, nil
}

func (f *fakeStore) FindPendingCrypto(now time.Time) ([]model.Order, error) {
	var result []model.Order
	for _, o := range f.orders {
		if o.Status == model.OrderStatusPending &&
			o.PaymentMethod == model.PaymentMethodCrypto &&
			o.ExpiresAt.After(now) {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (f *fakeStore) FindExpiredPending(now time.Time) ([]model.Order, error) {
	var result []model.Order
	for _, o := range f.orders {
		if o.Status == model.OrderStatusPending &&
			o.PaymentMethod == model.PaymentMethodCrypto &&
			o.ExpiresAt.Before(now) {
			result = append(result, *o)
		}
	}
	return result, nil
}

func (f *fakeStore) MarkExpired(orderID int64, now time.Time) (bool, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return false, nil
	}
	if o.Status != model.OrderStatusPending ||
		o.PaymentMethod != model.PaymentMethodCrypto ||
		!o.ExpiresAt.Before(now) {
		return false, nil
	}
	o.Status = model.OrderStatusExpired
	return true, nil
}

func (f *fakeStore) NextSequenceCode() (string, error) {
	f.counter++
	return ordercode.FormatCode(f.counter)
}

func (f *fakeStore) Create(order *model.Order) error {
	f.nextID++
	order.ID = f.nextID
	cp := *order
	f.orders[cp.ID] = &cp
	return nil
}

func (f *fakeStore) FindByOrderNo(orderNo string) (*model.Order, error) {
	for _, o := range f.orders {
		if o.OrderNo == orderNo {
			cp := *o
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) UpdateStatusFrom(orderID int64, from, to int16) (bool, error) {
	o, ok := f.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (f *fakeStore) ListOrders(filter repository.OrderFilter) ([]model.Order, int64, error) {
	var result []model.Order
	for _, o := range f.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		result = append(result, *o)
	}
	return result, int64(len(result)), nil
}

// fakeNotifier 记录所有发出的通知
type fakeNotifier struct {
	msgs []*mq.OrderNotifyMessage
	err  error
}

func (f *fakeNotifier) PublishOrderNotify(msg *mq.OrderNotifyMessage) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

// fakeLedger 返回固定的转账页
type fakeLedger struct {
	mu        sync.Mutex
	transfers []trongrid.Transfer
	err       error
	calls     int
}

func (f *fakeLedger) FetchRecentTransfers(ctx context.Context, address string, minTimestamp int64) ([]trongrid.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.transfers, nil
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLedger) setTransfers(transfers []trongrid.Transfer, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = transfers
	f.err = err
}

// usdtTransfer 组装一笔标准的 USDT 转账记录
func usdtTransfer(id, to, rawValue string, blockTs int64) trongrid.Transfer {
	return trongrid.Transfer{
		TransferID: id,
		TokenInfo: trongrid.TokenInfo{
			Symbol:   "USDT",
			Decimals: 6,
		},
		From:           "TSenderAddress111111111111111111111",
		To:             to,
		Type:           trongrid.TransferType,
		Value:          rawValue,
		BlockTimestamp: blockTs,
	}
}
