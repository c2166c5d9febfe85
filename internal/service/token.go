package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"aliasrelay/backend/internal/domain"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// ReplyEmailChecker 检查回复地址是否已被占用
type ReplyEmailChecker interface {
	ReplyEmailExists(ctx context.Context, replyEmail string) (bool, error)
}

// TokenConfig 回复地址生成参数
type TokenConfig struct {
	Domain      string    // 回复地址所在域名
	Length      int       // reply+ 地址随机部分长度，0 使用默认值
	MaxAttempts int       // 单次生成的最大采样次数
	Source      io.Reader // 随机源，nil 时使用 crypto/rand
}

// TokenGenerator 生成全局唯一且不可猜测的回复地址。
type TokenGenerator struct {
	checker ReplyEmailChecker
	cfg     TokenConfig
}

// NewTokenGenerator 创建回复地址生成器。
func NewTokenGenerator(checker ReplyEmailChecker, cfg TokenConfig) *TokenGenerator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Source == nil {
		cfg.Source = rand.Reader
	}
	return &TokenGenerator{checker: checker, cfg: cfg}
}

// MaxAttempts 单次生成的最大采样次数
func (g *TokenGenerator) MaxAttempts() int { return g.cfg.MaxAttempts }

// Generate 采样随机地址直到找到未被占用的一个，超过最大次数返回 ErrTokenExhausted。
//
// 存在性检查只是快速路径，最终唯一性由存储层唯一约束保证。
func (g *TokenGenerator) Generate(ctx context.Context, kind domain.TokenKind) (string, error) {
	length := kind.DefaultLength()
	if kind == domain.TokenKindReply && g.cfg.Length > 0 {
		length = g.cfg.Length
	}

	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		token, err := g.randomString(length)
		if err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}
		candidate := kind.Prefix() + token + "@" + g.cfg.Domain

		exists, err := g.checker.ReplyEmailExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrTokenExhausted
}

// randomString 拒绝采样，保证每个字符在字母表上均匀分布
func (g *TokenGenerator) randomString(n int) (string, error) {
	const limit = 256 - 256%len(tokenAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(g.cfg.Source, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
