// Package message 提供不可变的邮件头列表以及转发/回复方向的头部改写。
//
// 所有改写都只作用于头部，正文字节原样保留。
package message

import "strings"

// Field 一个头部字段。
//
// 从原始邮件解析出的字段保留原始字节（含折行），序列化时原样输出。
type Field struct {
	Key   string
	Value string
	raw   []byte
}

// Header 有序、不可变的头部列表，键名大小写不敏感。
//
// 所有修改操作都返回新的 Header，原值不受影响。
type Header struct {
	fields []Field
}

// NewHeader 由字段列表创建 Header
func NewHeader(fields ...Field) Header {
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return Header{fields: cp}
}

// Len 字段数量
func (h Header) Len() int { return len(h.fields) }

// Fields 返回字段列表的副本
func (h Header) Fields() []Field {
	cp := make([]Field, len(h.fields))
	copy(cp, h.fields)
	return cp
}

// Get 返回第一个匹配字段的值，不存在时返回空串
func (h Header) Get(key string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}
	return ""
}

// Values 返回全部匹配字段的值
func (h Header) Values(key string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Key, key) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has 判断字段是否存在
func (h Header) Has(key string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Key, key) {
			return true
		}
	}
	return false
}

// Remove 删除全部匹配字段
func (h Header) Remove(key string) Header {
	out := make([]Field, 0, len(h.fields))
	for _, f := range h.fields {
		if !strings.EqualFold(f.Key, key) {
			out = append(out, f)
		}
	}
	return Header{fields: out}
}

// Upsert 替换第一个匹配字段的值并删除其余同名字段；不存在时追加到末尾。
func (h Header) Upsert(key, value string) Header {
	value = sanitize(value)
	out := make([]Field, 0, len(h.fields)+1)
	replaced := false
	for _, f := range h.fields {
		if !strings.EqualFold(f.Key, key) {
			out = append(out, f)
			continue
		}
		if !replaced {
			out = append(out, Field{Key: f.Key, Value: value})
			replaced = true
		}
	}
	if !replaced {
		out = append(out, Field{Key: key, Value: value})
	}
	return Header{fields: out}
}

// Add 追加一个字段
func (h Header) Add(key, value string) Header {
	out := make([]Field, len(h.fields), len(h.fields)+1)
	copy(out, h.fields)
	out = append(out, Field{Key: key, Value: sanitize(value)})
	return Header{fields: out}
}

// sanitize 去掉换行，防止头部注入
func sanitize(value string) string {
	if !strings.ContainsAny(value, "\r\n") {
		return value
	}
	return strings.Join(strings.FieldsFunc(value, func(r rune) bool {
		return r == '\r' || r == '\n'
	}), " ")
}
