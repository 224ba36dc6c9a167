package service

import (
	"log"
	"sort"
	"strings"
	"time"

	"usdt-order-pay/internal/model"
	"usdt-order-pay/internal/ordercode"
	"usdt-order-pay/pkg/trongrid"

	"github.com/shopspring/decimal"
)

// Match 一笔转账与一个订单的配对结果
type Match struct {
	Order    model.Order
	Transfer trongrid.Transfer
	Amount   decimal.Decimal // 人类可读金额 = rawValue / 10^decimals
}

// Collision 同一笔转账同时命中多个订单，不自动确认，留待人工对账
type Collision struct {
	Transfer trongrid.Transfer
	OrderNos []string
}

// Matcher 在一页链上转账与待支付订单集合之间寻找配对
type Matcher struct {
	txStore TransactionStore
	wallet  string
	token   string

	// 缺少加密支付字段的脏订单只告警一次
	malformedLogged map[int64]bool
}

func NewMatcher(txStore TransactionStore, walletAddress, tokenSymbol string) *Matcher {
	return &Matcher{
		txStore:         txStore,
		wallet:          walletAddress,
		token:           tokenSymbol,
		malformedLogged: make(map[int64]bool),
	}
}

// Match 为每笔转账找至多一个匹配订单
// 同一轮内一个订单最多被一笔转账占用；无法匹配的转账留到下一轮重试
func (m *Matcher) Match(transfers []trongrid.Transfer, pendingOrders []model.Order, now time.Time) ([]Match, []Collision) {
	var matches []Match
	var collisions []Collision
	claimed := make(map[int64]bool)

	for _, tr := range transfers {
		// 1. 必须是 Transfer 类型
		if tr.Type != trongrid.TransferType {
			continue
		}
		// 2. 必须是转入本钱包
		if !strings.EqualFold(tr.To, m.wallet) {
			continue
		}
		// 3. 必须是目标代币
		if !strings.EqualFold(tr.TokenInfo.Symbol, m.token) {
			continue
		}

		// 4. 幂等预检：已有流水的转账直接跳过（权威判定仍在确认阶段的唯一索引）
		exists, err := m.txStore.ExistsByTransferID(tr.TransferID)
		if err != nil {
			log.Printf("检查转账是否已处理失败 (transfer: %s): %v", tr.TransferID, err)
			continue
		}
		if exists {
			continue
		}

		// 5. 解析金额（value 是代币最小单位）
		amount, err := ParseTransferAmount(tr.Value, tr.TokenInfo.Decimals)
		if err != nil {
			log.Printf("解析转账金额失败 (transfer: %s, value: %s): %v", tr.TransferID, tr.Value, err)
			continue
		}

		// 6. 在候选订单中解码订单码
		candidates := m.findCandidates(amount, pendingOrders, claimed, now)
		if len(candidates) == 0 {
			// 没有匹配订单不算错误，转账还在账本窗口内时下一轮会重试
			continue
		}
		if len(candidates) > 1 {
			nos := make([]string, 0, len(candidates))
			for _, o := range candidates {
				nos = append(nos, o.OrderNo)
			}
			collisions = append(collisions, Collision{Transfer: tr, OrderNos: nos})
			continue
		}

		order := candidates[0]
		claimed[order.ID] = true
		matches = append(matches, Match{Order: order, Transfer: tr, Amount: amount})
	}

	return matches, collisions
}

// findCandidates 返回解码命中这笔转账的订单
// 多个命中时按创建时间最早优先；最早创建时间并列则全部返回，由调用方按撞码处理
func (m *Matcher) findCandidates(amount decimal.Decimal, pendingOrders []model.Order, claimed map[int64]bool, now time.Time) []model.Order {
	var hits []model.Order
	for _, order := range pendingOrders {
		if claimed[order.ID] {
			continue
		}
		if order.Status != model.OrderStatusPending {
			continue
		}
		if !order.ExpiresAt.After(now) {
			continue
		}
		if !order.IsCryptoPayable() {
			if !m.malformedLogged[order.ID] {
				log.Printf("订单 %s 缺少加密支付字段，跳过对账", order.OrderNo)
				m.malformedLogged[order.ID] = true
			}
			continue
		}

		code, ok := ordercode.Decode(amount, order.TotalAmount)
		if !ok {
			continue
		}
		if code == order.SequenceCode {
			hits = append(hits, order)
		}
	}

	if len(hits) <= 1 {
		return hits
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].CreatedAt.Before(hits[j].CreatedAt)
	})
	if hits[0].CreatedAt.Equal(hits[1].CreatedAt) {
		// 最早创建时间并列，无法区分先后，这些订单一起视为撞码
		tied := []model.Order{hits[0]}
		for _, h := range hits[1:] {
			if h.CreatedAt.Equal(hits[0].CreatedAt) {
				tied = append(tied, h)
			}
		}
		return tied
	}
	return hits[:1]
}

// ParseTransferAmount 将链上最小单位的整数串转为实际金额
func ParseTransferAmount(value string, decimals int) (decimal.Decimal, error) {
	raw, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	divisor := decimal.New(1, int32(decimals))
	return raw.Div(divisor), nil
}
