package service

import (
	"testing"
	"time"

	"usdt-order-pay/internal/model"
)

func TestSweeper_Sweep(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("过期窗口外的待支付订单被清扫", func(t *testing.T) {
		store := newFakeStore()
		notifier := &fakeNotifier{}
		sweeper := NewSweeper(store, notifier)

		// 11 分钟前创建，窗口 10 分钟 → 已过期
		stale := cryptoOrder(t, 1, "12.50", "000007", now.Add(-11*time.Minute), now.Add(-time.Minute))
		// 5 分钟前创建 → 仍然有效
		fresh := cryptoOrder(t, 2, "30.00", "000008", now.Add(-5*time.Minute), now.Add(5*time.Minute))
		store.addOrder(stale)
		store.addOrder(fresh)

		count, err := sweeper.Sweep(now)
		if err != nil {
			t.Fatalf("Sweep 失败: %v", err)
		}
		if count != 1 {
			t.Fatalf("期望清扫 1 单, 实际 %d", count)
		}
		if store.orders[1].Status != model.OrderStatusExpired {
			t.Fatalf("期望订单 1 已过期, 实际 %s", model.StatusText(store.orders[1].Status))
		}
		if store.orders[2].Status != model.OrderStatusPending {
			t.Fatalf("订单 2 不应被清扫, 实际 %s", model.StatusText(store.orders[2].Status))
		}

		if len(notifier.msgs) != 1 {
			t.Fatalf("期望 1 条过期通知, 实际 %d", len(notifier.msgs))
		}
		if notifier.msgs[0].Status != model.OrderStatusExpired {
			t.Fatalf("期望通知状态已过期, 实际 %d", notifier.msgs[0].Status)
		}
	})

	t.Run("立即重跑影响零单", func(t *testing.T) {
		store := newFakeStore()
		sweeper := NewSweeper(store, &fakeNotifier{})

		store.addOrder(cryptoOrder(t, 1, "12.50", "000007", now.Add(-11*time.Minute), now.Add(-time.Minute)))

		if count, _ := sweeper.Sweep(now); count != 1 {
			t.Fatalf("第一轮期望 1 单, 实际 %d", count)
		}
		count, err := sweeper.Sweep(now)
		if err != nil {
			t.Fatalf("第二轮 Sweep 失败: %v", err)
		}
		if count != 0 {
			t.Fatalf("第二轮应为 0 单, 实际 %d", count)
		}
	})

	t.Run("已支付的订单不会被清扫", func(t *testing.T) {
		store := newFakeStore()
		sweeper := NewSweeper(store, &fakeNotifier{})

		paid := cryptoOrder(t, 1, "12.50", "000007", now.Add(-11*time.Minute), now.Add(-time.Minute))
		paid.Status = model.OrderStatusPaid
		store.addOrder(paid)

		count, _ := sweeper.Sweep(now)
		if count != 0 {
			t.Fatalf("已支付订单不应被清扫, 实际 %d", count)
		}
		if store.orders[1].Status != model.OrderStatusPaid {
			t.Fatal("订单状态不应被改动")
		}
	})

	t.Run("非加密订单不参与清扫", func(t *testing.T) {
		store := newFakeStore()
		sweeper := NewSweeper(store, &fakeNotifier{})

		other := cryptoOrder(t, 1, "12.50", "000007", now.Add(-11*time.Minute), now.Add(-time.Minute))
		other.PaymentMethod = model.PaymentMethodOther
		store.addOrder(other)

		count, _ := sweeper.Sweep(now)
		if count != 0 {
			t.Fatalf("非加密订单不应被清扫, 实际 %d", count)
		}
	})
}
