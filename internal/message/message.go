package message

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/emersion/go-message/textproto"
)

// ErrMalformed 邮件头无法解析
var ErrMalformed = errors.New("malformed message")

// Message 解析后的邮件：不可变头部与原始正文
type Message struct {
	Header Header
	Body   []byte
}

// Parse 解析原始邮件字节
func Parse(raw []byte) (*Message, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	th, err := textproto.ReadHeader(br)
	if err != nil && !(errors.Is(err, io.EOF) && th.Len() > 0) {
		// 只有头部没有正文的邮件以 EOF 结束，视为合法
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	fields := make([]Field, 0, th.Len())
	hf := th.Fields()
	for hf.Next() {
		rawField, err := hf.Raw()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		fields = append(fields, Field{Key: hf.Key(), Value: hf.Value(), raw: rawField})
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	return &Message{Header: Header{fields: fields}, Body: body}, nil
}

// WithHeader 返回替换了头部的新邮件，正文共享
func (m *Message) WithHeader(h Header) *Message {
	return &Message{Header: h, Body: m.Body}
}

// Bytes 序列化为原始邮件字节
//
// 未修改的字段按原始字节输出，新字段以 "Key: Value" 形式输出并保留键名大小写。
func (m *Message) Bytes() ([]byte, error) {
	var th textproto.Header
	// textproto.Header 以逆序保存字段，倒序添加才能按原顺序写出
	for i := len(m.Header.fields) - 1; i >= 0; i-- {
		f := m.Header.fields[i]
		if f.raw != nil {
			th.AddRaw(f.raw)
			continue
		}
		th.AddRaw([]byte(f.Key + ": " + f.Value + "\r\n"))
	}

	var buf bytes.Buffer
	buf.Grow(len(m.Body) + 1024)
	if err := textproto.WriteHeader(&buf, th); err != nil {
		return nil, err
	}
	buf.Write(m.Body)
	return buf.Bytes(), nil
}

// ReplaceAddress 在序列化后的邮件中把 old 地址（大小写不敏感）全部替换为 replacement
func ReplaceAddress(raw []byte, old, replacement string) []byte {
	if old == "" {
		return raw
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(old))
	return re.ReplaceAllLiteral(raw, []byte(replacement))
}
