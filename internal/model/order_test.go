package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to int16
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusExpired, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusOutForDelivery, false},
		{OrderStatusPaid, OrderStatusPreparing, true},
		{OrderStatusPaid, OrderStatusCancelled, true},
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusPreparing, OrderStatusOutForDelivery, true},
		{OrderStatusOutForDelivery, OrderStatusDelivered, true},
		{OrderStatusOutForDelivery, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusExpired, OrderStatusPaid, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, 期望 %v",
				StatusText(c.from), StatusText(c.to), got, c.want)
		}
	}
}

func TestOrder_IsCryptoPayable(t *testing.T) {
	base := Order{
		PaymentMethod:   PaymentMethodCrypto,
		SequenceCode:    "000007",
		RequestedAmount: decimal.RequireFromString("12.500007"),
		WalletAddress:   "TWalletAddress1111111111111111111",
		ExpiresAt:       time.Now().Add(time.Minute),
	}

	if !base.IsCryptoPayable() {
		t.Fatal("完整的加密订单应可参与对账")
	}

	broken := base
	broken.SequenceCode = ""
	if broken.IsCryptoPayable() {
		t.Error("缺少订单码的订单不应参与对账")
	}

	broken = base
	broken.RequestedAmount = decimal.Zero
	if broken.IsCryptoPayable() {
		t.Error("请求金额为零的订单不应参与对账")
	}

	broken = base
	broken.PaymentMethod = PaymentMethodOther
	if broken.IsCryptoPayable() {
		t.Error("非加密订单不应参与对账")
	}
}
