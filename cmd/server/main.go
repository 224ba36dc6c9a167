package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"usdt-order-pay/internal/clock"
	"usdt-order-pay/internal/config"
	"usdt-order-pay/internal/model"
	"usdt-order-pay/internal/mq"
	"usdt-order-pay/internal/repository"
	"usdt-order-pay/internal/server"
	"usdt-order-pay/internal/service"
	"usdt-order-pay/pkg/trongrid"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("配置加载成功, HTTP端口: %d, 钱包地址: %s, 代币: %s", cfg.HTTPPort, cfg.WalletAddress, cfg.TokenSymbol)

	// 2. 连接数据库（Silent 模式不输出 SQL，只有错误时输出）
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}
	log.Println("数据库连接成功")

	// 自动迁移
	if err := db.AutoMigrate(&model.Order{}, &model.PaymentTransaction{}, &model.OrderCounter{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库迁移完成")

	// 3. 连接 RabbitMQ（订单状态通知）
	mqClient, err := mq.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("连接 RabbitMQ 失败: %v", err)
	}
	defer mqClient.Close()

	// 4. 初始化 Repository
	orderRepo := repository.NewOrderRepository(db)
	txRepo := repository.NewTransactionRepository(db)

	// 5. 初始化 Service
	clk := clock.NewSystem()
	orderService := service.NewOrderService(orderRepo, mqClient, clk, cfg.WalletAddress, cfg.ExpireWindow())

	tronClient := trongrid.NewClient(cfg.TronGridAPIURL, cfg.TronGridAPIKey, cfg.LedgerTimeout())
	matcher := service.NewMatcher(txRepo, cfg.WalletAddress, cfg.TokenSymbol)
	confirmer := service.NewConfirmer(txRepo, mqClient)
	sweeper := service.NewSweeper(orderRepo, mqClient)
	reconciler := service.NewReconciler(
		tronClient, orderRepo, matcher, confirmer, sweeper, clk,
		cfg.WalletAddress,
		cfg.ReconcileInterval(), cfg.SweepInterval(), cfg.LedgerTimeout(), cfg.Lookback(),
	)

	// 6. 创建可取消的 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 7. 启动对账与过期清扫循环
	reconciler.Start(ctx)

	// 8. 启动 HTTP 服务
	httpServer := server.NewHTTPServer(orderService, txRepo, cfg.HTTPPort)
	go func() {
		log.Printf("HTTP 服务已启动，监听端口: %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务异常: %v", err)
		}
	}()

	// 9. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("收到退出信号: %v", sig)

	cancel()
	if err := httpServer.Shutdown(context.Background()); err != nil {
		log.Printf("HTTP 服务关闭异常: %v", err)
	}
	log.Println("服务已优雅退出")
}
