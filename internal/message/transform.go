package message

import (
	"errors"
	"mime"
	"strings"

	"github.com/emersion/go-message/mail"

	"aliasrelay/backend/internal/domain"
)

const (
	// TypeHeader 标记经由中继转发的邮件
	TypeHeader = "X-AliasRelay-Type"
	// TypeForward TypeHeader 的转发取值
	TypeForward = "Forward"

	listUnsubscribe     = "List-Unsubscribe"
	listUnsubscribePost = "List-Unsubscribe-Post"
	oneClick            = "List-Unsubscribe=One-Click"
)

// ErrNoSender From 头缺失或无法提取地址
var ErrNoSender = errors.New("message has no usable From header")

// ForwardParams 转发方向改写参数
type ForwardParams struct {
	ReplyAddress   string // 该通信方的回复地址，作为新的 From 地址
	UnsubscribeURL string
}

// ReplyParams 回复方向改写参数
type ReplyParams struct {
	AliasAddress   string
	WebsiteEmail   string
	UnsubscribeURL string
}

// UnsubscribeURL 控制台一键退订地址
func UnsubscribeURL(baseURL, aliasID string) string {
	return strings.TrimRight(baseURL, "/") + "/dashboard/unsubscribe/" + aliasID
}

// ParseFrom 从 From 头中拆出显示名与小写地址
func ParseFrom(value string) (name, address string, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", ErrNoSender
	}
	if addr, perr := mail.ParseAddress(value); perr == nil {
		return addr.Name, strings.ToLower(addr.Address), nil
	}

	// 不规范的 From 头：尽量取尖括号内的地址
	if l, r := strings.LastIndex(value, "<"), strings.LastIndex(value, ">"); l >= 0 && r > l {
		candidate := strings.TrimSpace(value[l+1 : r])
		if domain.IsValidAddress(candidate) {
			name := strings.Trim(strings.TrimSpace(value[:l]), `"`)
			return name, strings.ToLower(candidate), nil
		}
	}
	if domain.IsValidAddress(value) && !strings.ContainsAny(value, " \t") {
		return "", strings.ToLower(value), nil
	}
	return "", "", ErrNoSender
}

// ForwardFrom 生成转发邮件的 From 头：
//
//	<显示名> - <通信方地址，@ 替换为 " at "> <回复地址>
//
// 显示名为空时省略 "<显示名> - " 部分。
func ForwardFrom(name, websiteEmail, replyAddress string) string {
	display := strings.ReplaceAll(websiteEmail, "@", " at ")
	if name != "" {
		display = name + " - " + display
	}
	return encodeDisplayName(display) + " <" + replyAddress + ">"
}

// ForwardHeaders 转发方向的头部改写
func ForwardHeaders(h Header, p ForwardParams) (Header, error) {
	name, website, err := ParseFrom(h.Get("From"))
	if err != nil {
		return h, err
	}
	return h.
		Upsert(TypeHeader, TypeForward).
		Remove("Reply-To").
		Upsert("From", ForwardFrom(name, website, p.ReplyAddress)).
		Upsert(listUnsubscribe, "<"+p.UnsubscribeURL+">").
		Upsert(listUnsubscribePost, oneClick), nil
}

// ReplyHeaders 回复方向的头部改写
func ReplyHeaders(h Header, p ReplyParams) Header {
	return h.
		Remove("DKIM-Signature").
		Upsert("From", p.AliasAddress).
		Remove("Reply-To").
		Upsert("To", p.WebsiteEmail).
		Upsert(listUnsubscribe, "<"+p.UnsubscribeURL+">").
		Upsert(listUnsubscribePost, oneClick).
		Remove("Received-SPF")
}

// encodeDisplayName 按需对显示名加引号或做 RFC 2047 编码
func encodeDisplayName(name string) string {
	needsQuote := false
	for _, r := range name {
		if r > 0x7e || (r < 0x20 && r != '\t') {
			return mime.QEncoding.Encode("utf-8", name)
		}
		if strings.ContainsRune(`"\,:;<>()[]@`, r) {
			needsQuote = true
		}
	}
	if !needsQuote {
		return name
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name)
	return `"` + escaped + `"`
}
