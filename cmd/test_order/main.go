package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"usdt-order-pay/internal/config"
	"usdt-order-pay/internal/model"
	"usdt-order-pay/internal/mq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// createOrderResponse 创建订单接口返回的数据部分
type createOrderResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		OrderNo         string `json:"order_no"`
		SequenceCode    string `json:"sequence_code"`
		TotalAmount     string `json:"total_amount"`
		RequestedAmount string `json:"requested_amount"`
		WalletAddress   string `json:"wallet_address"`
		ExpiresAt       string `json:"expires_at"`
	} `json:"data"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("========== USDT 订单支付 端到端测试 ==========")

	// 1. 加载配置（获取 HTTP 端口和 RabbitMQ 地址）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 连接 RabbitMQ（用于消费通知）
	amqpConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("连接 RabbitMQ 失败: %v", err)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Fatalf("打开 RabbitMQ Channel 失败: %v", err)
	}
	defer amqpCh.Close()
	log.Println("[OK] RabbitMQ 连接成功")

	// 3. 通过 HTTP 创建订单（金额 12.50 USDT）
	log.Println("")
	log.Println("==========================================")
	log.Println("  步骤 1: 创建加密支付订单 (金额: 12.50 USDT)")
	log.Println("==========================================")

	order, err := createOrder(cfg.HTTPPort, "12.50")
	if err != nil {
		log.Fatalf("创建订单失败: %v", err)
	}

	log.Println("[OK] 订单创建成功!")
	log.Printf("    订单号:     %s", order.Data.OrderNo)
	log.Printf("    订单码:     %s", order.Data.SequenceCode)
	log.Printf("    订单总额:   %s USDT", order.Data.TotalAmount)
	log.Printf("    请求金额:   %s USDT (总额 + 订单码/1e6)", order.Data.RequestedAmount)
	log.Printf("    钱包地址:   %s", order.Data.WalletAddress)
	log.Printf("    过期时间:   %s", order.Data.ExpiresAt)

	// 4. 监听通知队列
	log.Println("")
	log.Println("==========================================")
	log.Println("  步骤 2: 监听通知队列 (支付成功 / 过期)")
	log.Println("==========================================")
	log.Printf("  - 订单将在 %d 分钟后过期", cfg.OrderExpireMinutes)
	log.Println("  - 向钱包转入请求金额 -> 支付成功通知")
	log.Println("  - 超时未支付 -> 订单过期通知")
	log.Println("  - 按 Ctrl+C 退出")
	log.Println("")

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go consumeNotify(runCtx, amqpCh, order.Data.OrderNo)

	// 5. 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("")
	log.Println("收到退出信号，正在关闭...")
	runCancel()
	time.Sleep(500 * time.Millisecond)
	log.Println("测试已退出")
}

// createOrder 调用创建订单接口
func createOrder(port int, amount string) (*createOrderResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"amount":         amount,
		"payment_method": "crypto",
	})

	url := fmt.Sprintf("http://localhost:%d/api/orders", port)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("状态码 %d: %s", resp.StatusCode, string(respBody))
	}

	var result createOrderResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("接口返回失败: %s", result.Message)
	}
	return &result, nil
}

// consumeNotify 消费通知队列，过滤出当前订单的通知
func consumeNotify(ctx context.Context, ch *amqp.Channel, targetOrderNo string) {
	consumerTag := fmt.Sprintf("test-notify-%d", time.Now().UnixNano())
	msgs, err := ch.Consume(mq.NotifyQueue, consumerTag, false, false, false, false, nil)
	if err != nil {
		log.Printf("订阅通知队列失败: %v", err)
		return
	}

	log.Println("[OK] 通知队列订阅成功，等待消息...")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				log.Println("通知消费通道已关闭")
				return
			}

			var notify mq.OrderNotifyMessage
			if err := json.Unmarshal(msg.Body, &notify); err != nil {
				log.Printf("解析通知消息失败: %v", err)
				msg.Nack(false, false)
				continue
			}

			// 只关注当前测试创建的订单
			if notify.OrderNo != targetOrderNo {
				log.Printf("  (忽略其他订单通知: %s)", notify.OrderNo)
				msg.Ack(false)
				continue
			}

			log.Println("")
			log.Println("**************************************************")
			switch notify.Status {
			case model.OrderStatusPaid:
				log.Println("  >>> 支付成功!")
			case model.OrderStatusExpired:
				log.Println("  >>> 订单已过期!")
			default:
				log.Printf("  >>> 状态变更: %s", model.StatusText(notify.Status))
			}
			log.Printf("    订单号:     %s", notify.OrderNo)
			log.Printf("    订单码:     %s", notify.SequenceCode)
			log.Printf("    订单总额:   %s USDT", notify.TotalAmount)
			log.Printf("    请求金额:   %s USDT", notify.RequestedAmount)
			if notify.ReceivedAmount != "" {
				log.Printf("    实收金额:   %s USDT", notify.ReceivedAmount)
			}
			log.Printf("    状态:       %s", model.StatusText(notify.Status))
			log.Printf("    钱包地址:   %s", notify.WalletAddress)
			if notify.TransferID != "" {
				log.Printf("    转账 ID:    %s", notify.TransferID)
			}
			log.Printf("    时间戳:     %s", time.Unix(notify.Timestamp, 0).Format("2006-01-02 15:04:05"))
			log.Println("**************************************************")
			log.Println("")

			msg.Ack(false)
		}
	}
}
