package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"hotelling/models"
)

// LoadConfig は既定値、JSONファイル、.env、環境変数の順に設定を重ねます。
// ファイルが無い場合は既定値のまま進みます。
func LoadConfig(filename string) (models.Config, error) {
	config := models.DefaultConfig()

	if filename != "" {
		configFile, err := os.Open(filename)
		switch {
		case err == nil:
			defer configFile.Close()
			if err := json.NewDecoder(configFile).Decode(&config); err != nil {
				return config, fmt.Errorf("設定ファイル %s の解析に失敗しました: %w", filename, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return config, err
		}
	}

	// .env は任意
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf(".env の読み込みに失敗しました: %w", err)
	}
	if err := env.Parse(&config); err != nil {
		return config, fmt.Errorf("環境変数の解析に失敗しました: %w", err)
	}
	return config, config.Validate()
}

func DSN(config models.DatabaseConfig) string {
	return fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
		config.DBHost, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)
}

func InitPostgreSQL(config models.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	const maxRetries = 3
	const retryInterval = 5 * time.Second
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(DSN(config)), &gorm.Config{})
		if err == nil {
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(retryInterval)
		}
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
}

// InitRedis は中継トランスポート用のクライアントを作成し、疎通を確認します。
func InitRedis(config models.RelayConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := NewRedisClient(config)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.String("addr", config.Addr), zap.Error(err))
		rdb.Close()
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", config.Addr))
	return rdb, nil
}

func NewRedisClient(config models.RelayConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
}
