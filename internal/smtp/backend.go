package smtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/domain"
	"aliasrelay/backend/internal/relay"
)

// Handler 处理一个完整的信封
type Handler interface {
	Handle(ctx context.Context, env *relay.Envelope) relay.Result
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 每个事务只接受一个收件人，RCPT 阶段只检查语法，是否存在由中继引擎在 DATA 之后判断。
type Backend struct {
	handler  Handler
	limiter  *ConnectionLimiter
	maxBytes int64
	timeout  time.Duration
	onReject func()
	log      *zap.Logger
}

// NewBackend 创建 SMTP Backend，limiter 为空表示不限流。
func NewBackend(handler Handler, limiter *ConnectionLimiter, cfg config.SMTPConfig, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Backend{
		handler:  handler,
		limiter:  limiter,
		maxBytes: cfg.MaxMessageBytes,
		timeout:  timeout,
		log:      log.Named("smtp"),
	}
}

// OnReject 注册会话被限流拒绝时的回调
func (b *Backend) OnReject(fn func()) {
	b.onReject = fn
}

// NewServer 按配置创建入站 SMTP 服务器。
func NewServer(be *Backend, cfg config.SMTPConfig, log *zap.Logger) *gosmtp.Server {
	s := gosmtp.NewServer(be)
	s.Addr = cfg.BindAddr
	s.Domain = cfg.Domain
	s.ReadTimeout = cfg.ReadTimeout
	s.WriteTimeout = cfg.WriteTimeout
	s.MaxMessageBytes = cfg.MaxMessageBytes
	s.EnableSMTPUTF8 = true
	if log != nil {
		s.ErrorLog = zap.NewStdLog(log.Named("smtp_server"))
	}
	return s
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	remote := ""
	if nc := c.Conn(); nc != nil {
		remote = nc.RemoteAddr().String()
	}
	if b.limiter != nil && !b.limiter.Acquire() {
		b.log.Warn("session refused by limiter", zap.String("remote", remote))
		if b.onReject != nil {
			b.onReject()
		}
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b, remote: remote}, nil
}

type session struct {
	backend  *Backend
	remote   string
	from     string
	utf8     bool
	eightBit bool
	rcpt     string
	released bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.from = from
	if opts != nil {
		s.utf8 = opts.UTF8
		s.eightBit = opts.Body == gosmtp.Body8BitMIME
	}
	return nil
}

// Rcpt 处理 RCPT 命令，只做语法检查。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := domain.NormalizeAddress(to)
	if !domain.IsValidAddress(addr) {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	if s.rcpt != "" {
		return &gosmtp.SMTPError{
			Code:         452,
			EnhancedCode: gosmtp.EnhancedCode{4, 5, 3},
			Message:      "one recipient per transaction",
		}
	}
	s.rcpt = addr
	return nil
}

// Data 读取邮件内容并交给中继引擎。
func (s *session) Data(r io.Reader) error {
	if s.rcpt == "" {
		return &gosmtp.SMTPError{Code: 554, EnhancedCode: gosmtp.EnhancedCode{5, 5, 1}, Message: "no valid recipients"}
	}

	limit := s.backend.maxBytes
	if limit <= 0 {
		limit = 25 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		if errors.Is(err, gosmtp.ErrDataTooLarge) {
			return err
		}
		return fmt.Errorf("read data: %w", err)
	}
	if int64(len(raw)) > limit {
		return gosmtp.ErrDataTooLarge
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.backend.timeout)
	defer cancel()

	res := s.backend.handler.Handle(ctx, &relay.Envelope{
		Sender:     s.from,
		Recipients: []string{s.rcpt},
		Data:       raw,
		UTF8:       s.utf8,
		EightBit:   s.eightBit,
	})
	s.backend.log.Debug("data handled",
		zap.String("remote", s.remote),
		zap.String("mail_from", s.from),
		zap.String("rcpt", s.rcpt),
		zap.String("result", res.String()),
	)
	return toSMTPError(res)
}

// Reset 重置事务状态。
func (s *session) Reset() {
	s.from = ""
	s.rcpt = ""
	s.utf8 = false
	s.eightBit = false
}

// Logout 会话结束，归还连接配额。
func (s *session) Logout() error {
	if !s.released && s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	s.released = true
	return nil
}

// toSMTPError 2xx 返回 nil
func toSMTPError(res relay.Result) error {
	if res.Accepted() {
		return nil
	}
	return &gosmtp.SMTPError{
		Code:         res.Code,
		EnhancedCode: gosmtp.EnhancedCode(res.EnhancedCode),
		Message:      res.Message,
	}
}
