package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"aliasrelay/backend/internal/auth/jwt"
	"aliasrelay/backend/internal/bootstrap"
	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/logger"
	"aliasrelay/backend/internal/seed"
)

// 开发环境种子工具：写入用户、邮箱、目录、通配域名和示例别名，并输出一个调试用令牌。
func main() {
	var (
		email     = flag.String("email", "", "所有者默认邮箱（必填）")
		name      = flag.String("name", "Developer", "所有者名称")
		mailbox   = flag.String("mailbox", "", "附加邮箱")
		directory = flag.String("directory", "", "目录前缀")
		catchAll  = flag.String("catch-all", "", "通配自定义域名")
		alias     = flag.String("alias", "", "预建别名地址")
		premium   = flag.Bool("premium", false, "写入终身会员")
		tokenTTL  = flag.Duration("token-ttl", 24*time.Hour, "调试令牌有效期，0 表示不输出")
	)
	flag.Parse()

	log := logger.NewDevelopment()
	defer func() { _ = log.Sync() }()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "Usage: seed -email owner@example.com [-directory dev] [-catch-all example.org] [-alias hello@example.com] [-premium]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.Database.Type == "" {
		log.Warn("no database configured, seeding the in-memory store has no lasting effect")
	}

	stores, err := bootstrap.OpenStore(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() { _ = stores.Store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := seed.Run(ctx, stores.Store, seed.Options{
		OwnerEmail:     *email,
		OwnerName:      *name,
		Mailbox:        *mailbox,
		Directory:      *directory,
		CatchAllDomain: *catchAll,
		AliasAddress:   *alias,
		Premium:        *premium,
	})
	if err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}

	fmt.Println("Seed data written")
	fmt.Printf("  User:      %s (%s)\n", res.User.ID, res.User.Email)
	if res.Mailbox != nil {
		fmt.Printf("  Mailbox:   %s (%s)\n", res.Mailbox.ID, res.Mailbox.Email)
	}
	if res.Directory != nil {
		fmt.Printf("  Directory: %s\n", res.Directory.Name)
	}
	if res.CustomDomain != nil {
		fmt.Printf("  Catch-all: %s\n", res.CustomDomain.Domain)
	}
	if res.Alias != nil {
		fmt.Printf("  Alias:     %s (%s)\n", res.Alias.Address, res.Alias.ID)
	}

	if *tokenTTL > 0 {
		token, err := jwt.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer).Issue(res.User.ID, res.User.Email, *tokenTTL)
		if err != nil {
			log.Fatal("failed to issue token", zap.Error(err))
		}
		fmt.Printf("  Token:     %s\n", token)
	}
}
