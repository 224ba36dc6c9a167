package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"usdt-order-pay/internal/clock"
	"usdt-order-pay/internal/model"
	"usdt-order-pay/internal/mq"
	"usdt-order-pay/internal/ordercode"
	"usdt-order-pay/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound     = errors.New("订单不存在")
	ErrIllegalTransition = errors.New("非法的状态流转")
)

// OrderService 订单创建与管理
// 加密订单在创建时就分配订单码并把码编进请求金额，对账引擎只消费不分配
type OrderService struct {
	orders        OrderAdminStore
	notifier      Notifier
	clk           clock.Clock
	walletAddress string
	expireWindow  time.Duration
}

func NewOrderService(
	orders OrderAdminStore,
	notifier Notifier,
	clk clock.Clock,
	walletAddress string,
	expireWindow time.Duration,
) *OrderService {
	return &OrderService{
		orders:        orders,
		notifier:      notifier,
		clk:           clk,
		walletAddress: walletAddress,
		expireWindow:  expireWindow,
	}
}

// CreateOrder 创建订单
// 加密订单: 分配订单码 → 请求金额 = 总额 + 码/1e6 → 过期时间 = 创建时间 + 支付窗口
func (s *OrderService) CreateOrder(ctx context.Context, amountStr string, paymentMethod int16) (*model.Order, error) {
	totalAmount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("无效的金额: %w", err)
	}
	if totalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("金额必须大于 0")
	}

	now := s.clk.Now()
	order := &model.Order{
		OrderNo:       s.generateOrderNo(now),
		TotalAmount:   totalAmount,
		PaymentMethod: paymentMethod,
		Status:        model.OrderStatusPending,
		CreatedAt:     now,
	}

	// 订单码对所有订单统一分配，只有加密订单把它编进支付金额
	code, err := s.orders.NextSequenceCode()
	if err != nil {
		return nil, err
	}
	order.SequenceCode = code

	if paymentMethod == model.PaymentMethodCrypto {
		requested, err := ordercode.Encode(totalAmount, code)
		if err != nil {
			return nil, fmt.Errorf("编码请求金额失败: %w", err)
		}
		order.RequestedAmount = requested
		order.WalletAddress = s.walletAddress
		order.ExpiresAt = now.Add(s.expireWindow)
	}

	if err := s.orders.Create(order); err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}

	return order, nil
}

// GetOrder 根据订单号查询订单
func (s *OrderService) GetOrder(orderNo string) (*model.Order, error) {
	order, err := s.orders.FindByOrderNo(orderNo)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	return order, nil
}

// UpdateStatus 管理端推进订单状态（备餐、配送、送达）
// pending / paid / expired 只能由对账引擎流转，这里一律拒绝
func (s *OrderService) UpdateStatus(orderNo string, to int16) (*model.Order, error) {
	if to == model.OrderStatusPaid || to == model.OrderStatusExpired || to == model.OrderStatusPending {
		return nil, ErrIllegalTransition
	}
	return s.transition(orderNo, to)
}

// CancelOrder 取消订单，配送中与已送达的订单不可取消
func (s *OrderService) CancelOrder(orderNo string) (*model.Order, error) {
	return s.transition(orderNo, model.OrderStatusCancelled)
}

// transition 条件更新，只在当前状态允许时生效
func (s *OrderService) transition(orderNo string, to int16) (*model.Order, error) {
	order, err := s.GetOrder(orderNo)
	if err != nil {
		return nil, err
	}

	if !model.CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition,
			model.StatusText(order.Status), model.StatusText(to))
	}

	ok, err := s.orders.UpdateStatusFrom(order.ID, order.Status, to)
	if err != nil {
		return nil, fmt.Errorf("更新订单状态失败: %w", err)
	}
	if !ok {
		// 状态在查询与更新之间被别处改掉了
		return nil, ErrIllegalTransition
	}
	order.Status = to

	msg := &mq.OrderNotifyMessage{
		OrderNo:         order.OrderNo,
		SequenceCode:    order.SequenceCode,
		TotalAmount:     order.TotalAmount.String(),
		RequestedAmount: order.RequestedAmount.String(),
		Status:          to,
		WalletAddress:   order.WalletAddress,
		Timestamp:       time.Now().Unix(),
	}
	if err := s.notifier.PublishOrderNotify(msg); err != nil {
		log.Printf("发送状态通知失败 (订单: %s): %v", order.OrderNo, err)
	}

	return order, nil
}

// ListOrders 分页查询订单列表
func (s *OrderService) ListOrders(filter repository.OrderFilter) ([]model.Order, int64, error) {
	return s.orders.ListOrders(filter)
}

// generateOrderNo 生成订单号: YYYYMMDDHHmmss + 4位随机数
func (s *OrderService) generateOrderNo(now time.Time) string {
	prefix := now.Format("20060102150405")
	suffix := fmt.Sprintf("%04d", rand.Intn(10000))
	return prefix + suffix
}
