// Package security 提供密码的单向哈希
package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"banksystem/internal/config"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher 密码单向变换，存储层只保存 Hash 的结果
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// SHA256Hasher 十六进制 SHA-256，与已有 accounts.txt 的格式兼容
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (h SHA256Hasher) Verify(password, digest string) bool {
	got, _ := h.Hash(password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(digest)) == 1
}

// BcryptHasher 带盐的 bcrypt，同一密码每次哈希结果不同，只能用 Verify 比较
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt 哈希失败: %w", err)
	}
	return string(b), nil
}

func (BcryptHasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// NewPasswordHasher 按配置选择哈希实现
func NewPasswordHasher(cfg config.SecurityConfig) (PasswordHasher, error) {
	switch cfg.PasswordHasher {
	case config.HasherSHA256, "":
		return SHA256Hasher{}, nil
	case config.HasherBcrypt:
		if cfg.BcryptCost != 0 && (cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost) {
			return nil, fmt.Errorf("bcrypt_cost 超出范围 [%d, %d]: %d", bcrypt.MinCost, bcrypt.MaxCost, cfg.BcryptCost)
		}
		return BcryptHasher{Cost: cfg.BcryptCost}, nil
	}
	return nil, fmt.Errorf("不支持的 password_hasher: %q", cfg.PasswordHasher)
}
