package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger 可探测连通性的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 函数适配器
type PingFunc func(ctx context.Context) error

// Ping 实现 Pinger
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker 健康检查器，封装 heptiolabs/healthcheck。
//
// 存活检查只包含进程自身，就绪检查包含存储与可选的 Redis、SMTP 监听。
type Checker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewChecker 创建健康检查器
func NewChecker(logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	return &Checker{health: h, logger: logger.Named("health")}
}

// AddStore 注册存储就绪检查
func (c *Checker) AddStore(name string, health func() error) {
	c.health.AddReadinessCheck(name, c.logged(name, health))
}

// AddPinger 注册带超时的就绪检查
func (c *Checker) AddPinger(name string, p Pinger, timeout time.Duration) {
	c.health.AddReadinessCheck(name, c.logged(name, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return p.Ping(ctx)
	}))
}

// AddTCP 注册 TCP 端口可达检查，例如入站 SMTP 监听地址
func (c *Checker) AddTCP(name, addr string, timeout time.Duration) {
	c.health.AddReadinessCheck(name, c.logged(name, healthcheck.TCPDialCheck(addr, timeout)))
}

func (c *Checker) logged(name string, check healthcheck.Check) healthcheck.Check {
	return func() error {
		err := check()
		if err != nil {
			c.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
		}
		return err
	}
}

// LiveHandler 存活检查
func (c *Checker) LiveHandler() http.HandlerFunc {
	return c.health.LiveEndpoint
}

// ReadyHandler 就绪检查
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return c.health.ReadyEndpoint
}
