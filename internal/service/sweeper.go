package service

import (
	"log"
	"time"

	"usdt-order-pay/internal/model"
	"usdt-order-pay/internal/mq"
)

// Sweeper 把支付窗口已过的待支付订单置为已过期
type Sweeper struct {
	orders   OrderStore
	notifier Notifier
}

func NewSweeper(orders OrderStore, notifier Notifier) *Sweeper {
	return &Sweeper{
		orders:   orders,
		notifier: notifier,
	}
}

// Sweep 执行一轮过期清扫，返回本轮流转为过期的订单数，立即重跑影响 0 行
// 更新谓词里再次校验 status = pending，与支付确认并发时不会碰到刚被支付的订单
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	orders, err := s.orders.FindExpiredPending(now)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, order := range orders {
		ok, err := s.orders.MarkExpired(order.ID, now)
		if err != nil {
			log.Printf("过期订单失败 (订单: %s): %v", order.OrderNo, err)
			continue
		}
		if !ok {
			// 查询与更新之间支付确认抢先落地，订单已不是待支付
			continue
		}
		count++

		msg := &mq.OrderNotifyMessage{
			OrderNo:         order.OrderNo,
			SequenceCode:    order.SequenceCode,
			TotalAmount:     order.TotalAmount.String(),
			RequestedAmount: order.RequestedAmount.String(),
			Status:          model.OrderStatusExpired,
			WalletAddress:   order.WalletAddress,
			Timestamp:       time.Now().Unix(),
		}
		if err := s.notifier.PublishOrderNotify(msg); err != nil {
			log.Printf("发送过期通知失败 (订单: %s): %v", order.OrderNo, err)
		}
	}

	if count > 0 {
		log.Printf("本轮过期订单: %d", count)
	}
	return count, nil
}
