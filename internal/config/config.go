package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Bank     BankConfig     `mapstructure:"bank"`
	Security SecurityConfig `mapstructure:"security"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
}

type StorageConfig struct {
	AccountsFile     string `mapstructure:"accounts_file"`
	TransactionsFile string `mapstructure:"transactions_file"`
}

type BankConfig struct {
	FirstAccountNumber int64 `mapstructure:"first_account_number"`
}

type SecurityConfig struct {
	PasswordHasher string `mapstructure:"password_hasher"` // sha256 | bcrypt
	BcryptCost     int    `mapstructure:"bcrypt_cost"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Transactions string `mapstructure:"transactions"`
}

// Enabled 未配置 broker 时不发布事件
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SlogLevel 将配置的日志级别转换为 slog.Level，无法识别时使用 warn
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelWarn
	}
	return level
}

const (
	HasherSHA256 = "sha256"
	HasherBcrypt = "bcrypt"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.accounts_file", "accounts.txt")
	v.SetDefault("storage.transactions_file", "transactions.txt")
	v.SetDefault("bank.first_account_number", 100001)
	v.SetDefault("security.password_hasher", HasherSHA256)
	v.SetDefault("security.bcrypt_cost", 10)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic.transactions", "bank.transactions")
	v.SetDefault("log.level", "warn")
}

// Default 不读取任何文件时的配置
func Default() *Config {
	cfg, _ := load(viper.New())
	return cfg
}

// LoadConfig 加载配置文件
// 配置文件不存在时使用默认值，即当前目录下的 accounts.txt 与 transactions.txt
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.Security.PasswordHasher = strings.ToLower(cfg.Security.PasswordHasher)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Storage.AccountsFile == "" || c.Storage.TransactionsFile == "" {
		return errors.New("storage 文件路径不能为空")
	}
	if c.Storage.AccountsFile == c.Storage.TransactionsFile {
		return errors.New("账户文件与流水文件不能相同")
	}
	if c.Bank.FirstAccountNumber <= 0 {
		return fmt.Errorf("bank.first_account_number 必须大于0: %d", c.Bank.FirstAccountNumber)
	}
	switch c.Security.PasswordHasher {
	case HasherSHA256, HasherBcrypt:
	default:
		return fmt.Errorf("不支持的 password_hasher: %q", c.Security.PasswordHasher)
	}
	if c.Kafka.Enabled() && c.Kafka.Topic.Transactions == "" {
		return errors.New("配置了 kafka.brokers 但 kafka.topic.transactions 为空")
	}
	return nil
}
