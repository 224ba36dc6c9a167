package service

import (
	"context"
	"log"
	"time"

	"usdt-order-pay/internal/clock"
)

// Reconciler 驱动 拉取-匹配-确认 与过期清扫两个独立的定时循环
// 两个循环除订单/流水存储外不共享任何可变状态，轮次重叠也不会破坏一致性
// （并发安全完全由 transfer_id 唯一索引和条件更新谓词保证，不依赖互斥）
type Reconciler struct {
	ledger    LedgerClient
	orders    OrderStore
	matcher   *Matcher
	confirmer *Confirmer
	sweeper   *Sweeper
	clk       clock.Clock

	wallet            string
	reconcileInterval time.Duration
	sweepInterval     time.Duration
	ledgerTimeout     time.Duration
	lookback          time.Duration
}

func NewReconciler(
	ledger LedgerClient,
	orders OrderStore,
	matcher *Matcher,
	confirmer *Confirmer,
	sweeper *Sweeper,
	clk clock.Clock,
	walletAddress string,
	reconcileInterval, sweepInterval, ledgerTimeout, lookback time.Duration,
) *Reconciler {
	return &Reconciler{
		ledger:            ledger,
		orders:            orders,
		matcher:           matcher,
		confirmer:         confirmer,
		sweeper:           sweeper,
		clk:               clk,
		wallet:            walletAddress,
		reconcileInterval: reconcileInterval,
		sweepInterval:     sweepInterval,
		ledgerTimeout:     ledgerTimeout,
		lookback:          lookback,
	}
}

// Start 启动两个定时循环，ctx 取消时停止
func (r *Reconciler) Start(ctx context.Context) {
	go r.runLoop(ctx, "对账", r.reconcileInterval, r.ReconcileOnce)
	go r.runLoop(ctx, "过期清扫", r.sweepInterval, r.SweepOnce)
}

// runLoop 固定间隔循环，启动时立即执行一次
func (r *Reconciler) runLoop(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) {
	log.Printf("%s循环已启动，间隔: %v", name, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s循环已停止", name)
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// ReconcileOnce 执行一轮对账：拉取转账 → 匹配订单 → 逐笔确认
// 账本调用超时或失败只跳过本轮，不重试，下一轮从头再来
func (r *Reconciler) ReconcileOnce(ctx context.Context) {
	now := r.clk.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, r.ledgerTimeout)
	defer cancel()

	transfers, err := r.ledger.FetchRecentTransfers(fetchCtx, r.wallet, now.Add(-r.lookback).UnixMilli())
	if err != nil {
		log.Printf("获取链上转账失败，跳过本轮: %v", err)
		return
	}

	pending, err := r.orders.FindPendingCrypto(now)
	if err != nil {
		log.Printf("查询待支付订单失败，跳过本轮: %v", err)
		return
	}

	matches, collisions := r.matcher.Match(transfers, pending, now)

	for _, col := range collisions {
		// 撞码不自动确认任何一单，记录给运营人工对账
		log.Printf("解码撞码 (transfer: %s): 订单 %v 同时命中，留待人工对账", col.Transfer.TransferID, col.OrderNos)
	}

	for _, m := range matches {
		if err := r.confirmer.Confirm(m); err != nil {
			log.Printf("确认支付失败 (订单: %s, transfer: %s): %v", m.Order.OrderNo, m.Transfer.TransferID, err)
		}
	}
}

// SweepOnce 执行一轮过期清扫
func (r *Reconciler) SweepOnce(ctx context.Context) {
	if _, err := r.sweeper.Sweep(r.clk.Now()); err != nil {
		log.Printf("过期清扫失败: %v", err)
	}
}
