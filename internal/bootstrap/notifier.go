package bootstrap

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/notify"
	"aliasrelay/backend/internal/pool"
)

// Notifiers 按 notify.mode 组装的通知通道
type Notifiers struct {
	Notifier notify.Notifier

	pool   *pool.WorkerPool // async 模式
	client *asynq.Client    // queue 模式
	worker *asynq.Server
	mux    *asynq.ServeMux
}

// BuildNotifier 组装通知通道，direct 为实际发送邮件的通知器。
//
//   - sync: 中继直接调用 direct
//   - async: 进程内工作池异步调用 direct
//   - queue: 写入 asynq 队列，由本进程的 worker 消费后调用 direct
func BuildNotifier(cfg *config.Config, direct notify.Notifier, log *zap.Logger) *Notifiers {
	switch cfg.Notify.Mode {
	case "async":
		p := pool.NewWorkerPool(cfg.Notify.Workers, cfg.Notify.QueueSize, log.Named("notify_pool"))
		return &Notifiers{
			Notifier: notify.NewAsyncNotifier(direct, p, cfg.Relay.TransportTimeout, log),
			pool:     p,
		}
	case "queue":
		client := asynq.NewClient(notify.RedisOpt(cfg.Queue, cfg.Redis.Password))
		worker, mux := notify.NewQueueServer(cfg.Queue, cfg.Redis.Password, notify.NewTaskHandler(direct, log))
		return &Notifiers{
			Notifier: notify.NewQueueNotifier(client, cfg.Queue.MaxRetry, log),
			client:   client,
			worker:   worker,
			mux:      mux,
		}
	default:
		return &Notifiers{Notifier: direct}
	}
}

// Run 启动后台消费者并阻塞到 ctx 结束
func (n *Notifiers) Run(ctx context.Context) error {
	switch {
	case n.pool != nil:
		n.pool.Start(ctx)
		<-ctx.Done()
		n.pool.Stop()
	case n.worker != nil:
		if err := n.worker.Start(n.mux); err != nil {
			return err
		}
		<-ctx.Done()
		n.worker.Shutdown()
	default:
		<-ctx.Done()
	}
	return nil
}

// Close 释放队列客户端
func (n *Notifiers) Close() error {
	if n.client != nil {
		return n.client.Close()
	}
	return nil
}
