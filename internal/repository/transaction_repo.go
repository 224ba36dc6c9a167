package repository

import (
	"fmt"

	"usdt-order-pay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// ExistsByTransferID 检查转账是否已有支付流水（扫描前的幂等预检）
func (r *TransactionRepository) ExistsByTransferID(transferID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.PaymentTransaction{}).Where("transfer_id = ?", transferID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ConfirmPayment 在单个数据库事务中确认一笔支付：
// 先以 ON CONFLICT DO NOTHING 插入支付流水（transfer_id 唯一索引是权威幂等闸门，
// 冲突即已处理过，整体静默跳过），插入成功后再把订单从 pending 条件更新为 paid。
// 两步要么都生效，要么都不生效。
func (r *TransactionRepository) ConfirmPayment(ptx *model.PaymentTransaction) (bool, error) {
	inserted := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transfer_id"}},
			DoNothing: true,
		}).Create(ptx)
		if res.Error != nil {
			return fmt.Errorf("写入支付流水失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// 同一笔转账已被其他轮次消费过，按无操作处理
			return nil
		}
		inserted = true

		upd := tx.Model(&model.Order{}).
			Where("id = ? AND status = ?", ptx.OrderID, model.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":          model.OrderStatusPaid,
				"received_amount": ptx.Amount,
				"transfer_id":     ptx.TransferID,
			})
		if upd.Error != nil {
			return fmt.Errorf("更新订单状态失败: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			// 订单已不是待支付（比如恰好被清扫为过期），回滚流水，留给人工对账
			return fmt.Errorf("订单 %d 已不是待支付状态，放弃确认", ptx.OrderID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// List 分页查询支付流水，按区块时间倒序
func (r *TransactionRepository) List(page, pageSize int) ([]model.PaymentTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var total int64
	if err := r.db.Model(&model.PaymentTransaction{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []model.PaymentTransaction
	err := r.db.Order("block_timestamp DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txs).Error
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}
