// Package notify 发送带模板的事务通知邮件（别名创建被拒、回复发件人不符等）。
package notify

import (
	"context"
	"errors"
)

// Kind 通知类型
type Kind string

const (
	// KindDirectoryAliasDenied 目录前缀别名因套餐限制无法创建（发给所有者）
	KindDirectoryAliasDenied Kind = "directory-alias-denied"
	// KindDomainAliasDenied 通配域名别名因套餐限制无法创建（发给所有者）
	KindDomainAliasDenied Kind = "domain-alias-denied"
	// KindReplyMustUseMailbox 有人试图冒用回复地址（发给所有者）
	KindReplyMustUseMailbox Kind = "reply-must-use-mailbox"
	// KindSenderNotAllowed 发件人无权使用该回复地址（发给冒用者）
	KindSenderNotAllowed Kind = "sender-not-allowed"
)

// ErrUnknownKind 未注册模板的通知类型
var ErrUnknownKind = errors.New("unknown notification kind")

// Notification 一条待发送的通知
type Notification struct {
	Kind Kind              `json:"kind"`
	To   string            `json:"to"`
	Data map[string]string `json:"data,omitempty"`
}

// Notifier 通知发送器
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc 函数适配器
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify 实现 Notifier
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Nop 丢弃所有通知
var Nop Notifier = NotifierFunc(func(context.Context, Notification) error { return nil })

// Observed 在每次发送后回调 observe，用于统计
func Observed(next Notifier, observe func(kind Kind, err error)) Notifier {
	return NotifierFunc(func(ctx context.Context, n Notification) error {
		err := next.Notify(ctx, n)
		observe(n.Kind, err)
		return err
	})
}
