package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"aichat/internal/ai"
	"aichat/internal/config"
	"aichat/internal/model"
	mysqlClient "aichat/internal/platform/mysql"
	rabbitmqClient "aichat/internal/platform/rabbitmq"
	redisClient "aichat/internal/platform/redis"
	"aichat/internal/repository"
	"aichat/internal/storage"
	"aichat/internal/worker"
)

type App struct {
	Config      *config.Config
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Blobs       *storage.ObjectStore
	AI          *ai.Client
	UsagePub    *rabbitmqClient.UsagePublisher
	UsageWorker *worker.UsageWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Message{},
		&model.Attachment{},
		&model.UsageRecord{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.NewObjectStore(
		ctx,
		cfg.Storage.Bucket,
		cfg.Storage.CredentialsFile,
		time.Duration(cfg.Storage.URLTTLHours)*time.Hour,
	)
	if err != nil {
		return nil, err
	}

	aiClient := ai.NewClient(ai.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})

	usageRepo := repository.NewUsageRecordRepository(mysqlDB)
	usageWorker := worker.NewUsageWorker(mqConn, usageRepo, cfg.RabbitMQ.UsageQueue)
	if err := usageWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start usage worker failed: %w", err)
	}

	return &App{
		Config:      cfg,
		MySQL:       mysqlDB,
		Redis:       redisCli,
		MQConn:      mqConn,
		Blobs:       blobs,
		AI:          aiClient,
		UsagePub:    rabbitmqClient.NewUsagePublisher(mqConn, cfg.RabbitMQ.UsageQueue),
		UsageWorker: usageWorker,
		StartedAt:   time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.UsageWorker != nil {
		a.UsageWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Blobs != nil {
		if err := a.Blobs.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
