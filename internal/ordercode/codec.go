package ordercode

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	// CodeDigits 订单码位数
	CodeDigits = 6
	// CodeSpace 订单码空间大小（10^6）
	CodeSpace = int64(1_000_000)

	// microExp 金额转微单位的位移量（1 USDT = 1e6 微单位）
	microExp = 6
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// IsValidCode 检查是否为合法的 6 位订单码
func IsValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// FormatCode 将序号格式化为 6 位补零订单码
func FormatCode(seq int64) (string, error) {
	if seq < 0 || seq >= CodeSpace {
		return "", fmt.Errorf("序号超出订单码空间: %d", seq)
	}
	return fmt.Sprintf("%06d", seq), nil
}

// Encode 将 6 位订单码藏入支付金额的小数部分
// 公式: requested = base + code/1e6
// 全程以微单位整数（金额 × 1e6）运算，不做二进制浮点比较
func Encode(baseAmount decimal.Decimal, sequenceCode string) (decimal.Decimal, error) {
	if !IsValidCode(sequenceCode) {
		return decimal.Decimal{}, fmt.Errorf("无效的订单码: %q", sequenceCode)
	}

	baseMicro, ok := toMicroUnits(baseAmount)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("基础金额超过 6 位小数精度: %s", baseAmount.String())
	}
	if baseMicro <= 0 {
		return decimal.Decimal{}, fmt.Errorf("基础金额必须大于 0: %s", baseAmount.String())
	}

	code, err := strconv.ParseInt(sequenceCode, 10, 64)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("解析订单码失败: %w", err)
	}

	return decimal.New(baseMicro+code, -microExp), nil
}

// Decode 用候选订单的基础金额从观察到的转账金额中还原订单码
// 差值折算到微单位后严格介于 0 与 1e6 之间才视为有效订单码，否则不匹配
func Decode(observedAmount, candidateBaseAmount decimal.Decimal) (string, bool) {
	obsMicro, ok := toMicroUnits(observedAmount)
	if !ok {
		return "", false
	}
	baseMicro, ok := toMicroUnits(candidateBaseAmount)
	if !ok {
		return "", false
	}

	diff := obsMicro - baseMicro
	if diff <= 0 || diff >= CodeSpace {
		return "", false
	}

	return fmt.Sprintf("%06d", diff), true
}

// toMicroUnits 将金额转为微单位整数；超过 6 位小数或溢出 int64 则失败
func toMicroUnits(d decimal.Decimal) (int64, bool) {
	micro := d.Shift(microExp)
	if !micro.IsInteger() {
		return 0, false
	}
	bigMicro := micro.BigInt()
	if !bigMicro.IsInt64() {
		return 0, false
	}
	return bigMicro.Int64(), true
}
