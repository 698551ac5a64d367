package main

import (
	"context"
	"log/slog"
	"os"

	"banksystem/internal/config"
	"banksystem/internal/console"
	"banksystem/internal/infrastructure/mq"
	"banksystem/internal/repository"
	"banksystem/internal/security"
	"banksystem/internal/service"
)

func main() {
	// 加载配置，文件不存在时使用默认值
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		slog.Error("加载配置失败", "error", err)
		os.Exit(1)
	}

	// 日志输出到 stderr，避免与菜单混在一起
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))

	hasher, err := security.NewPasswordHasher(cfg.Security)
	if err != nil {
		slog.Error("初始化密码哈希失败", "error", err)
		os.Exit(1)
	}

	accountRepo := repository.NewAccountRepository(cfg.Storage.AccountsFile)
	transactionRepo := repository.NewTransactionRepository(cfg.Storage.TransactionsFile)

	opts := []service.Option{}
	if cfg.Kafka.Enabled() {
		producer, err := mq.NewKafkaProducer(&cfg.Kafka)
		if err != nil {
			slog.Error("初始化 Kafka 失败", "error", err)
			os.Exit(1)
		}
		publisher := mq.NewKafkaPublisher(producer, cfg.Kafka.Topic.Transactions)
		defer publisher.Close()
		opts = append(opts, service.WithPublisher(publisher))
	} else {
		opts = append(opts, service.WithPublisher(mq.NopPublisher{}))
	}

	accountService := service.NewAccountService(accountRepo, hasher, cfg.Bank.FirstAccountNumber)
	bankService := service.NewBankService(accountService, accountRepo, transactionRepo, opts...)

	if err := console.New(bankService, os.Stdin, os.Stdout).Run(context.Background()); err != nil {
		slog.Error("读取输入失败", "error", err)
	}
}
