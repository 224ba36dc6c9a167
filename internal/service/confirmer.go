package service

import (
	"log"
	"time"

	"usdt-order-pay/internal/model"
	"usdt-order-pay/internal/mq"
)

// Confirmer 把匹配结果落为支付流水并把订单推进到已支付
type Confirmer struct {
	txStore  TransactionStore
	notifier Notifier
}

func NewConfirmer(txStore TransactionStore, notifier Notifier) *Confirmer {
	return &Confirmer{
		txStore:  txStore,
		notifier: notifier,
	}
}

// Confirm 确认一笔支付，对同一 transfer_id 重复调用是无操作
// 流水插入与订单更新由存储层在同一事务内完成，唯一索引冲突即已处理过
func (c *Confirmer) Confirm(m Match) error {
	ptx := &model.PaymentTransaction{
		TransferID:     m.Transfer.TransferID,
		OrderID:        m.Order.ID,
		Amount:         m.Amount,
		FromAddress:    m.Transfer.From,
		ToAddress:      m.Transfer.To,
		TokenSymbol:    m.Transfer.TokenInfo.Symbol,
		RawValue:       m.Transfer.Value,
		Decimals:       m.Transfer.TokenInfo.Decimals,
		Status:         model.TxStatusConfirmed,
		BlockTimestamp: m.Transfer.BlockTimestamp,
	}

	inserted, err := c.txStore.ConfirmPayment(ptx)
	if err != nil {
		return err
	}
	if !inserted {
		// 重复投递（比如两轮轮询都看到同一笔转账），静默跳过
		return nil
	}

	// 通知失败只记录，绝不回滚已确认的支付
	msg := &mq.OrderNotifyMessage{
		OrderNo:         m.Order.OrderNo,
		SequenceCode:    m.Order.SequenceCode,
		TotalAmount:     m.Order.TotalAmount.String(),
		RequestedAmount: m.Order.RequestedAmount.String(),
		ReceivedAmount:  m.Amount.String(),
		Status:          model.OrderStatusPaid,
		WalletAddress:   m.Order.WalletAddress,
		TransferID:      m.Transfer.TransferID,
		FromAddress:     m.Transfer.From,
		Timestamp:       time.Now().Unix(),
	}
	if err := c.notifier.PublishOrderNotify(msg); err != nil {
		log.Printf("发送支付通知失败 (订单: %s): %v", m.Order.OrderNo, err)
	}

	log.Printf("订单支付成功: %s, 金额: %s, 转账: %s", m.Order.OrderNo, m.Amount.String(), m.Transfer.TransferID)
	return nil
}
