package repository

import (
	"fmt"
	"time"

	"usdt-order-pay/internal/model"
	"usdt-order-pay/internal/ordercode"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// counterID 序号计数器单行表的固定主键
const counterID = int16(1)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// NextSequenceCode 分配下一个订单码
// 计数器行加 FOR UPDATE 锁并在本事务内提交，保证序号单调递增、分配即消耗、永不复用
// （解码的正确性依赖订单码全局唯一）
func (r *OrderRepository) NextSequenceCode() (string, error) {
	var code string
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var counter model.OrderCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", counterID).
			First(&counter).Error
		if err == gorm.ErrRecordNotFound {
			counter = model.OrderCounter{ID: counterID, Value: 0}
			if err := tx.Create(&counter).Error; err != nil {
				return fmt.Errorf("初始化序号计数器失败: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("锁定序号计数器失败: %w", err)
		}

		counter.Value++
		code, err = ordercode.FormatCode(counter.Value)
		if err != nil {
			// 码空间耗尽（序号超过 999999），创建必须失败而不是复用
			return fmt.Errorf("分配订单码失败: %w", err)
		}

		if err := tx.Model(&model.OrderCounter{}).
			Where("id = ?", counterID).
			Update("value", counter.Value).Error; err != nil {
			return fmt.Errorf("更新序号计数器失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// Create 创建订单
func (r *OrderRepository) Create(order *model.Order) error {
	return r.db.Create(order).Error
}

// FindByOrderNo 根据订单号查找订单
func (r *OrderRepository) FindByOrderNo(orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindPendingCrypto 查询所有待支付且未过期的加密支付订单（对账候选集）
func (r *OrderRepository) FindPendingCrypto(now time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.
		Where("status = ? AND payment_method = ? AND expires_at > ?",
			model.OrderStatusPending, model.PaymentMethodCrypto, now).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// FindExpiredPending 查询已超过支付窗口但仍处于待支付的加密订单
func (r *OrderRepository) FindExpiredPending(now time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.
		Where("status = ? AND payment_method = ? AND expires_at < ?",
			model.OrderStatusPending, model.PaymentMethodCrypto, now).
		Find(&orders).Error
	return orders, err
}

// MarkExpired 把单个订单置为已过期
// 谓词里再次校验 status = pending，与支付确认并发时输掉竞争的一方影响 0 行
func (r *OrderRepository) MarkExpired(orderID int64, now time.Time) (bool, error) {
	res := r.db.Model(&model.Order{}).
		Where("id = ? AND status = ? AND payment_method = ? AND expires_at < ?",
			orderID, model.OrderStatusPending, model.PaymentMethodCrypto, now).
		Update("status", model.OrderStatusExpired)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateStatusFrom 条件状态更新，只在当前状态等于 from 时生效
func (r *OrderRepository) UpdateStatusFrom(orderID int64, from, to int16) (bool, error) {
	res := r.db.Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// OrderFilter 订单查询过滤条件
type OrderFilter struct {
	OrderNo       string
	SequenceCode  string
	Status        *int16
	PaymentMethod *int16
	TransferID    string
	Page          int
	PageSize      int
}

// Normalize 规范化分页参数
func (f *OrderFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

// ListOrders 分页查询订单列表，支持多字段搜索
func (r *OrderRepository) ListOrders(filter OrderFilter) ([]model.Order, int64, error) {
	query := r.db.Model(&model.Order{})

	// 订单号模糊匹配
	if filter.OrderNo != "" {
		query = query.Where("order_no LIKE ?", "%"+filter.OrderNo+"%")
	}
	// 订单码精确匹配
	if filter.SequenceCode != "" {
		query = query.Where("sequence_code = ?", filter.SequenceCode)
	}
	// 状态精确匹配
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	// 支付方式精确匹配
	if filter.PaymentMethod != nil {
		query = query.Where("payment_method = ?", *filter.PaymentMethod)
	}
	// 链上转账 ID 精确匹配
	if filter.TransferID != "" {
		query = query.Where("transfer_id = ?", filter.TransferID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	filter.Normalize()
	offset := (filter.Page - 1) * filter.PageSize

	var orders []model.Order
	if err := query.Order("created_at DESC").Offset(offset).Limit(filter.PageSize).Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}
