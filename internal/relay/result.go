package relay

import (
	"context"
	"errors"
	"fmt"

	"aliasrelay/backend/internal/delivery"
	"aliasrelay/backend/internal/service"
)

var (
	// ErrNoRecipient 信封没有收件人
	ErrNoRecipient = errors.New("no recipient")
	// ErrTooManyRecipients 一次事务只处理一个收件人
	ErrTooManyRecipients = errors.New("too many recipients")
	// ErrMalformedMessage 邮件无法解析或缺少 From 头
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownAlias 别名不存在且无法即时创建
	ErrUnknownAlias = errors.New("unknown alias")
	// ErrEntitlementDenied 套餐不允许即时创建别名
	ErrEntitlementDenied = errors.New("alias creation denied by plan")
	// ErrWrongReplyDomain 回复地址不在服务域名下
	ErrWrongReplyDomain = errors.New("reply address has wrong domain")
	// ErrUnknownReplyToken 回复地址没有对应的映射
	ErrUnknownReplyToken = errors.New("unknown reply address")
	// ErrAliasNotRecognized 别名域名既不是服务域名也不是已登记的自定义域名
	ErrAliasNotRecognized = errors.New("alias not recognized")
	// ErrUnauthorizedSender 回复的发件人不是别名的投递邮箱
	ErrUnauthorizedSender = errors.New("sender not allowed to reply")
	// ErrCustomDomainMissing 别名绑定的自定义域名记录缺失，属于数据不一致
	ErrCustomDomainMissing = errors.New("custom domain record missing")
	// ErrTransport 签名或出站投递失败
	ErrTransport = errors.New("transport failure")
)

// Outcome 一封邮件的处理结果
type Outcome string

const (
	OutcomeForwarded Outcome = "forwarded"
	OutcomeDropped   Outcome = "dropped"
	OutcomeRejected  Outcome = "rejected"
)

// Result 返回给 SMTP 会话的状态
type Result struct {
	Code         int
	EnhancedCode [3]int
	Message      string
	Outcome      Outcome
}

// Accepted 2xx
func (r Result) Accepted() bool { return r.Code/100 == 2 }

// Temporary 4xx，对端应稍后重试
func (r Result) Temporary() bool { return r.Code/100 == 4 }

func (r Result) String() string {
	return fmt.Sprintf("%d %d.%d.%d %s", r.Code, r.EnhancedCode[0], r.EnhancedCode[1], r.EnhancedCode[2], r.Message)
}

var accepted = Result{Code: 250, EnhancedCode: [3]int{2, 0, 0}, Message: "Message accepted for delivery"}

func rejected(code int, enhanced [3]int, msg string) Result {
	return Result{Code: code, EnhancedCode: enhanced, Message: msg, Outcome: OutcomeRejected}
}

// ResultFor 把处理错误映射为 SMTP 状态，nil 表示已接收。
func ResultFor(out Outcome, err error) Result {
	if err == nil {
		r := accepted
		r.Outcome = out
		return r
	}

	switch {
	case errors.Is(err, ErrNoRecipient):
		return rejected(554, [3]int{5, 5, 1}, "no valid recipients")
	case errors.Is(err, ErrTooManyRecipients):
		return rejected(452, [3]int{4, 5, 3}, "too many recipients")
	case errors.Is(err, ErrMalformedMessage):
		return rejected(550, [3]int{5, 6, 0}, "malformed message")
	case errors.Is(err, ErrUnknownAlias), errors.Is(err, ErrEntitlementDenied):
		return rejected(550, [3]int{5, 1, 1}, "Email not exist")
	case errors.Is(err, ErrWrongReplyDomain), errors.Is(err, ErrUnknownReplyToken):
		return rejected(550, [3]int{5, 1, 1}, "wrong reply email")
	case errors.Is(err, ErrAliasNotRecognized):
		return rejected(550, [3]int{5, 1, 1}, "alias unknown")
	case errors.Is(err, ErrUnauthorizedSender):
		return rejected(550, [3]int{5, 7, 1}, "ignored")
	case errors.Is(err, delivery.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return rejected(451, [3]int{4, 4, 1}, "delivery timed out, try again later")
	case errors.Is(err, ErrTransport):
		return rejected(451, [3]int{4, 3, 0}, "delivery failed, try again later")
	case errors.Is(err, service.ErrTokenExhausted):
		return rejected(451, [3]int{4, 3, 0}, "temporary failure, try again later")
	default:
		return rejected(451, [3]int{4, 3, 0}, "internal error, try again later")
	}
}
