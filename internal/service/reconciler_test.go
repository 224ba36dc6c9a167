package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"usdt-order-pay/internal/clock"
	"usdt-order-pay/internal/model"
	"usdt-order-pay/pkg/trongrid"
)

func newTestReconciler(store *fakeStore, ledger *fakeLedger, notifier *fakeNotifier, now time.Time) *Reconciler {
	matcher := NewMatcher(store, testWallet, testToken)
	confirmer := NewConfirmer(store, notifier)
	sweeper := NewSweeper(store, notifier)
	return NewReconciler(
		ledger, store, matcher, confirmer, sweeper, clock.NewFixed(now),
		testWallet,
		time.Minute, 2*time.Minute, 30*time.Second, time.Hour,
	)
}

func TestReconciler_ReconcileOnce(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(10 * time.Minute)

	t.Run("端到端: 拉取-匹配-确认", func(t *testing.T) {
		store := newFakeStore()
		store.addOrder(cryptoOrder(t, 1, "12.50", "000007", now.Add(-time.Minute), expires))
		ledger := &fakeLedger{
			transfers: []trongrid.Transfer{usdtTransfer("tx-1", testWallet, "12500007", now.UnixMilli())},
		}
		notifier := &fakeNotifier{}
		r := newTestReconciler(store, ledger, notifier, now)

		r.ReconcileOnce(context.Background())

		if store.orders[1].Status != model.OrderStatusPaid {
			t.Fatalf("期望订单已支付, 实际 %s", model.StatusText(store.orders[1].Status))
		}
		if len(store.txs) != 1 {
			t.Fatalf("期望 1 条支付流水, 实际 %d", len(store.txs))
		}
		if len(notifier.msgs) != 1 {
			t.Fatalf("期望 1 条通知, 实际 %d", len(notifier.msgs))
		}

		// 下一轮重复投递同一笔转账，状态不再变化
		r.ReconcileOnce(context.Background())

		if len(store.txs) != 1 {
			t.Fatalf("重复轮次不应新增流水, 实际 %d", len(store.txs))
		}
		if len(notifier.msgs) != 1 {
			t.Fatalf("重复轮次不应再发通知, 实际 %d", len(notifier.msgs))
		}
	})

	t.Run("账本调用失败只跳过本轮", func(t *testing.T) {
		store := newFakeStore()
		store.addOrder(cryptoOrder(t, 1, "12.50", "000007", now.Add(-time.Minute), expires))
		ledger := &fakeLedger{err: errors.New("trongrid 超时")}
		r := newTestReconciler(store, ledger, &fakeNotifier{}, now)

		r.ReconcileOnce(context.Background())

		if store.orders[1].Status != model.OrderStatusPending {
			t.Fatal("账本失败时不应有任何状态变化")
		}
		if len(store.txs) != 0 {
			t.Fatal("账本失败时不应写流水")
		}

		// 恢复后下一轮从头重试
		ledger.setTransfers([]trongrid.Transfer{usdtTransfer("tx-1", testWallet, "12500007", now.UnixMilli())}, nil)
		r.ReconcileOnce(context.Background())

		if store.orders[1].Status != model.OrderStatusPaid {
			t.Fatal("恢复后应完成确认")
		}
	})

	t.Run("撞码轮次不确认任何订单", func(t *testing.T) {
		store := newFakeStore()
		createdAt := now.Add(-time.Minute)
		store.addOrder(cryptoOrder(t, 1, "12.50", "000007", createdAt, expires))
		store.addOrder(cryptoOrder(t, 2, "12.500001", "000006", createdAt, expires))
		ledger := &fakeLedger{
			transfers: []trongrid.Transfer{usdtTransfer("tx-1", testWallet, "12500007", now.UnixMilli())},
		}
		r := newTestReconciler(store, ledger, &fakeNotifier{}, now)

		r.ReconcileOnce(context.Background())

		if store.orders[1].Status != model.OrderStatusPending || store.orders[2].Status != model.OrderStatusPending {
			t.Fatal("撞码时两个订单都应保持待支付")
		}
		if len(store.txs) != 0 {
			t.Fatal("撞码时不应写流水")
		}
	})
}

func TestReconciler_SweepOnce(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store := newFakeStore()
	store.addOrder(cryptoOrder(t, 1, "12.50", "000007", now.Add(-11*time.Minute), now.Add(-time.Minute)))
	r := newTestReconciler(store, &fakeLedger{}, &fakeNotifier{}, now)

	r.SweepOnce(context.Background())

	if store.orders[1].Status != model.OrderStatusExpired {
		t.Fatalf("期望订单已过期, 实际 %s", model.StatusText(store.orders[1].Status))
	}
}

func TestReconciler_StartStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	ledger := &fakeLedger{}
	r := newTestReconciler(store, ledger, &fakeNotifier{}, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	// 两个循环启动时都会立即执行一次
	deadline := time.After(2 * time.Second)
	for ledger.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("对账循环未执行")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	cancel()
}
