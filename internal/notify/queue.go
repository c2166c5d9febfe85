package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/config"
)

// TypeNotifySend asynq 任务类型
const TypeNotifySend = "notify:send"

// Enqueuer asynq 客户端的入队操作
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewNotifyTask 把通知序列化为 asynq 任务。
func NewNotifyTask(n Notification) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotifySend, payload), nil
}

// QueueNotifier 把通知投入 Redis 队列，由 worker 侧的 TaskHandler 发送。
type QueueNotifier struct {
	client   Enqueuer
	maxRetry int
	log      *zap.Logger
}

// NewQueueNotifier 创建队列通知器。
func NewQueueNotifier(client Enqueuer, maxRetry int, log *zap.Logger) *QueueNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueueNotifier{client: client, maxRetry: maxRetry, log: log.Named("notify_queue")}
}

// Notify 实现 Notifier。
func (q *QueueNotifier) Notify(ctx context.Context, n Notification) error {
	if _, ok := templates[n.Kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, n.Kind)
	}
	task, err := NewNotifyTask(n)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(q.maxRetry),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	q.log.Debug("notification enqueued", zap.String("kind", string(n.Kind)), zap.String("task_id", info.ID))
	return nil
}

// TaskHandler worker 侧处理 notify:send 任务。
type TaskHandler struct {
	next Notifier
	log  *zap.Logger
}

// NewTaskHandler 创建任务处理器，next 通常是 Mailer。
func NewTaskHandler(next Notifier, log *zap.Logger) *TaskHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskHandler{next: next, log: log.Named("notify_worker")}
}

// ProcessTask 实现 asynq.Handler。负载或类型错误不重试。
func (h *TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeNotifySend {
		return fmt.Errorf("unexpected task type %s: %w", t.Type(), asynq.SkipRetry)
	}
	var n Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	if err := h.next.Notify(ctx, n); err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		h.log.Warn("notification attempt failed", zap.String("kind", string(n.Kind)), zap.Error(err))
		return err
	}
	return nil
}

// retryDelay 指数退避，从 30 秒开始，最长 30 分钟
func retryDelay(attempt int, _ error, _ *asynq.Task) time.Duration {
	delay := 30 * time.Second * time.Duration(1<<attempt)
	if delay <= 0 || delay > 30*time.Minute {
		delay = 30 * time.Minute
	}
	return delay
}

// RedisOpt 由队列配置生成 asynq 的 Redis 连接参数
func RedisOpt(cfg config.QueueConfig, password string) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddress,
		Password: password,
		DB:       cfg.RedisDB,
	}
}

// NewQueueServer 创建处理通知任务的 asynq 服务端与路由。
func NewQueueServer(cfg config.QueueConfig, password string, handler *TaskHandler) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(RedisOpt(cfg, password), asynq.Config{
		Concurrency:    cfg.Concurrency,
		LogLevel:       asynq.WarnLevel,
		RetryDelayFunc: retryDelay,
	})
	mux := asynq.NewServeMux()
	mux.Handle(TypeNotifySend, handler)
	return srv, mux
}
