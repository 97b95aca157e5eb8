package models

import (
	"fmt"
	"time"
)

// Config はサーバー全体の設定を保持します。
// JSONファイルで読み込んだ後、環境変数で上書きできます。
type Config struct {
	Transport string          `json:"transport" env:"HOTELLING_TRANSPORT"` // "direct" または "relay"
	Network   NetworkConfig   `json:"network"`
	Game      GameConfig      `json:"game"`
	Interface InterfaceConfig `json:"interface"`
	Relay     RelayConfig     `json:"relay"`
	Database  DatabaseConfig  `json:"database"`
	Snapshot  SnapshotConfig  `json:"snapshot"`
	Operator  OperatorConfig  `json:"operator"`
}

type NetworkConfig struct {
	Host         string `json:"host" env:"HOTELLING_HOST"`
	Port         int    `json:"port" env:"HOTELLING_PORT"`
	OperatorPort int    `json:"operator_port" env:"HOTELLING_OPERATOR_PORT"`
	Workers      int    `json:"workers" env:"HOTELLING_WORKERS"`
	MaxInFlight  int64  `json:"max_in_flight" env:"HOTELLING_MAX_IN_FLIGHT"`
	// 接続ごとの応答待ち上限（ミリ秒）
	ReplyTimeoutMs int      `json:"reply_timeout_ms" env:"HOTELLING_REPLY_TIMEOUT_MS"`
	AllowOrigins   []string `json:"allow_origins" env:"HOTELLING_ALLOW_ORIGINS" envSeparator:","`
}

// GameConfig は実験のパラメータです。
type GameConfig struct {
	NFirms           int   `json:"n_firms"`
	NCustomers       int   `json:"n_customers" env:"HOTELLING_N_CUSTOMERS"`
	NPositions       int   `json:"n_positions"`
	NPrices          int   `json:"n_prices"`
	InitialPositions []int `json:"initial_positions"`
	InitialPrices    []int `json:"initial_prices"`
	Shuffle          bool  `json:"shuffle_roles"`
	// ボット顧客の探索半径
	BotRadius int `json:"bot_radius"`
}

type InterfaceConfig struct {
	ExplorationCost    int `json:"exploration_cost"`
	UtilityConsumption int `json:"utility_consumption"`
}

// RelayConfig はポーリング中継（Redis）の設定です。
type RelayConfig struct {
	Addr           string `json:"addr" env:"REDIS_ADDR"`
	Password       string `json:"password" env:"REDIS_PASSWORD"`
	DB             int    `json:"db" env:"REDIS_DB"`
	Prefix         string `json:"prefix" env:"HOTELLING_RELAY_PREFIX"`
	PollIntervalMs int    `json:"poll_interval_ms" env:"HOTELLING_POLL_INTERVAL_MS"`
	BatchSize      int64  `json:"batch_size"`
	MaxRetries     int    `json:"max_retries"`
}

type DatabaseConfig struct {
	Enabled    bool   `json:"enabled" env:"DB_ENABLED"`
	DBHost     string `json:"db_host" env:"DB_HOST"`
	DBUser     string `json:"db_user" env:"DB_USER"`
	DBPassword string `json:"db_password" env:"DB_PASSWORD"`
	DBName     string `json:"db_name" env:"DB_NAME"`
	DBSSLMode  string `json:"db_sslmode" env:"DB_SSLMODE"`
}

type SnapshotConfig struct {
	Schedule string `json:"schedule" env:"HOTELLING_SNAPSHOT_SCHEDULE"` // cron表記。例: "@every 30s"
}

type OperatorConfig struct {
	Name      string `json:"name" env:"HOTELLING_OPERATOR_NAME"`
	Password  string `json:"password" env:"HOTELLING_OPERATOR_PASSWORD"`
	JwtSecret string `json:"jwt_secret" env:"HOTELLING_JWT_SECRET"`
	TokenTTLh int    `json:"token_ttl_hours"`
}

// DefaultConfig は設定ファイルが無い場合の既定値です。
func DefaultConfig() Config {
	return Config{
		Transport: "direct",
		Network: NetworkConfig{
			Host:           "localhost",
			Port:           1234,
			OperatorPort:   8080,
			Workers:        8,
			MaxInFlight:    64,
			ReplyTimeoutMs: 5000,
		},
		Game: GameConfig{
			NFirms:           2,
			NCustomers:       2,
			NPositions:       21,
			NPrices:          11,
			InitialPositions: []int{5, 15},
			InitialPrices:    []int{5, 5},
			Shuffle:          true,
			BotRadius:        2,
		},
		Interface: InterfaceConfig{
			ExplorationCost:    1,
			UtilityConsumption: 20,
		},
		Relay: RelayConfig{
			Addr:           "localhost:6379",
			Prefix:         "hotelling",
			PollIntervalMs: 500,
			BatchSize:      100,
			MaxRetries:     5,
		},
		Snapshot: SnapshotConfig{Schedule: "@every 30s"},
		Operator: OperatorConfig{Name: "operator", TokenTTLh: 12},
	}
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Relay.PollIntervalMs) * time.Millisecond
}

func (c Config) ReplyTimeout() time.Duration {
	return time.Duration(c.Network.ReplyTimeoutMs) * time.Millisecond
}

// Validate は起動前に設定の整合性を確認します。
func (c Config) Validate() error {
	if c.Transport != "direct" && c.Transport != "relay" {
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Game.NFirms != 2 {
		return fmt.Errorf("n_firms must be 2, got %d", c.Game.NFirms)
	}
	if c.Game.NCustomers < 1 {
		return fmt.Errorf("n_customers must be positive")
	}
	if c.Game.NPositions < 2 || c.Game.NPrices < 2 {
		return fmt.Errorf("n_positions and n_prices must be at least 2")
	}
	if len(c.Game.InitialPositions) != 2 || len(c.Game.InitialPrices) != 2 {
		return fmt.Errorf("initial_positions and initial_prices need one value per firm")
	}
	if c.Network.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.Operator.JwtSecret == "" {
		return fmt.Errorf("operator jwt secret cannot be empty")
	}
	return nil
}
