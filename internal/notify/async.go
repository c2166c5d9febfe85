package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"aliasrelay/backend/internal/pool"
)

// ErrQueueFull 异步通知队列已满
var ErrQueueFull = errors.New("notification queue full")

// AsyncNotifier 在进程内工作池中发送通知，Notify 不等待投递结果。
type AsyncNotifier struct {
	next    Notifier
	pool    *pool.WorkerPool
	timeout time.Duration
	log     *zap.Logger
}

// NewAsyncNotifier 创建异步通知器，p 需由调用方启动和停止。
func NewAsyncNotifier(next Notifier, p *pool.WorkerPool, timeout time.Duration, log *zap.Logger) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AsyncNotifier{next: next, pool: p, timeout: timeout, log: log.Named("notify_async")}
}

// Notify 实现 Notifier。
func (a *AsyncNotifier) Notify(_ context.Context, n Notification) error {
	ok := a.pool.TrySubmit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.next.Notify(ctx, n); err != nil {
			a.log.Error("async notification failed",
				zap.String("kind", string(n.Kind)),
				zap.String("to", n.To),
				zap.Error(err),
			)
		}
	})
	if !ok {
		a.log.Warn("notification dropped", zap.String("kind", string(n.Kind)), zap.String("to", n.To))
		return ErrQueueFull
	}
	return nil
}
