package domain

import "strings"

// TokenKind 回复地址的命名空间。
type TokenKind int

const (
	TokenKindNone TokenKind = iota
	// TokenKindReply 转发时自动生成的回复地址
	TokenKindReply
	// TokenKindReverseAlias 控制台手动创建联系人时生成的回复地址
	TokenKindReverseAlias
)

// tokenPrefixes 前缀表。增删前缀只需修改这里。
var tokenPrefixes = []struct {
	kind   TokenKind
	prefix string
	length int
}{
	{TokenKindReply, "reply+", 30},
	{TokenKindReverseAlias, "ra+", 25},
}

// ClassifyRecipient 根据收件地址前缀判断其是否为回复地址
func ClassifyRecipient(address string) TokenKind {
	address = strings.ToLower(address)
	for _, p := range tokenPrefixes {
		if strings.HasPrefix(address, p.prefix) {
			return p.kind
		}
	}
	return TokenKindNone
}

// Prefix 返回该命名空间的地址前缀
func (k TokenKind) Prefix() string {
	for _, p := range tokenPrefixes {
		if p.kind == k {
			return p.prefix
		}
	}
	return ""
}

// DefaultLength 随机部分的默认长度
func (k TokenKind) DefaultLength() int {
	for _, p := range tokenPrefixes {
		if p.kind == k {
			return p.length
		}
	}
	return 0
}

func (k TokenKind) String() string {
	switch k {
	case TokenKindReply:
		return "reply"
	case TokenKindReverseAlias:
		return "reverse_alias"
	default:
		return "none"
	}
}
