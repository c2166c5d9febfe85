package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMessage = "Received: from mx.biz.example\r\n" +
	"From: \"Jane Doe\" <jane@biz.example>\r\n" +
	"To: x@relay.example\r\n" +
	"Reply-To: other@biz.example\r\n" +
	"Subject: Hello\r\n" +
	"DKIM-Signature: v=1; a=rsa-sha256; d=biz.example;\r\n" +
	"  b=abc\r\n" +
	"Received-SPF: pass (mailbox.example)\r\n" +
	"\r\n" +
	"Body line one\r\n" +
	"Body line two\r\n"

func TestParse_RoundTrip(t *testing.T) {
	msg, err := Parse([]byte(sampleMessage))
	require.NoError(t, err)

	assert.Equal(t, "Hello", msg.Header.Get("subject"))
	assert.Equal(t, 8, msg.Header.Len())
	assert.Equal(t, "Body line one\r\nBody line two\r\n", string(msg.Body))

	raw, err := msg.Bytes()
	require.NoError(t, err)
	assert.Equal(t, sampleMessage, string(raw))
}

func TestParse_HeaderOnly(t *testing.T) {
	msg, err := Parse([]byte("From: a@x.example\r\nSubject: s\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "a@x.example", msg.Header.Get("From"))
	assert.Empty(t, msg.Body)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("this is not a header\r\n\r\nbody"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestForwardFrom(t *testing.T) {
	tests := []struct {
		name, website, reply, want string
	}{
		{"Jane Doe", "jane@biz.example", "abcd1234@relay.example", "Jane Doe - jane at biz.example <abcd1234@relay.example>"},
		{"", "jane@biz.example", "r@relay.example", "jane at biz.example <r@relay.example>"},
		{"Doe, Jane", "jane@biz.example", "r@relay.example", `"Doe, Jane - jane at biz.example" <r@relay.example>`},
		{"Zoë", "z@biz.example", "r@relay.example", "=?utf-8?q?Zo=C3=AB_-_z_at_biz.example?= <r@relay.example>"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ForwardFrom(tt.name, tt.website, tt.reply))
		})
	}
}

func TestParseFrom(t *testing.T) {
	tests := []struct {
		value, name, address string
		ok                   bool
	}{
		{`"Jane Doe" <Jane@Biz.Example>`, "Jane Doe", "jane@biz.example", true},
		{"boss@biz.example", "", "boss@biz.example", true},
		{"=?utf-8?q?Zo=C3=AB?= <z@biz.example>", "Zoë", "z@biz.example", true},
		{"Broken \"name <x@biz.example>", "Broken \"name", "x@biz.example", true},
		{"", "", "", false},
		{"no address here", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			name, addr, err := ParseFrom(tt.value)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrNoSender)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.address, addr)
		})
	}
}

func TestForwardHeaders(t *testing.T) {
	msg, err := Parse([]byte(sampleMessage))
	require.NoError(t, err)

	out, err := ForwardHeaders(msg.Header, ForwardParams{
		ReplyAddress:   "abcd1234@relay.example",
		UnsubscribeURL: UnsubscribeURL("https://app.relay.example/", "alias-1"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe - jane at biz.example <abcd1234@relay.example>", out.Get("From"))
	assert.False(t, out.Has("Reply-To"))
	assert.Equal(t, TypeForward, out.Get(TypeHeader))
	assert.Equal(t, "<https://app.relay.example/dashboard/unsubscribe/alias-1>", out.Get("List-Unsubscribe"))
	assert.Equal(t, "List-Unsubscribe=One-Click", out.Get("List-Unsubscribe-Post"))
	// 原头部不变
	assert.True(t, msg.Header.Has("Reply-To"))

	// 正文不变
	raw, err := msg.WithHeader(out).Bytes()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(raw), "\r\n\r\nBody line one\r\nBody line two\r\n"))
}

func TestForwardHeaders_NoFrom(t *testing.T) {
	_, err := ForwardHeaders(NewHeader(Field{Key: "Subject", Value: "x"}), ForwardParams{})
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestReplyHeaders(t *testing.T) {
	msg, err := Parse([]byte(sampleMessage))
	require.NoError(t, err)

	out := ReplyHeaders(msg.Header, ReplyParams{
		AliasAddress:   "shop@relay.example",
		WebsiteEmail:   "boss@biz.example",
		UnsubscribeURL: "https://app.relay.example/dashboard/unsubscribe/alias-1",
	})

	assert.Equal(t, "shop@relay.example", out.Get("From"))
	assert.Equal(t, "boss@biz.example", out.Get("To"))
	assert.False(t, out.Has("Reply-To"))
	assert.False(t, out.Has("DKIM-Signature"))
	assert.False(t, out.Has("Received-SPF"))
	assert.Equal(t, "<https://app.relay.example/dashboard/unsubscribe/alias-1>", out.Get("List-Unsubscribe"))

	// 同一头部可被重复改写，结果一致
	again := ReplyHeaders(msg.Header, ReplyParams{AliasAddress: "shop@relay.example", WebsiteEmail: "boss@biz.example"})
	assert.Equal(t, out.Get("From"), again.Get("From"))
}

func TestReplaceAddress(t *testing.T) {
	raw := []byte("To: x\r\n\r\n> On Monday REPLY+abc@relay.example wrote:\r\nreply+abc@relay.example")
	out := ReplaceAddress(raw, "reply+abc@relay.example", "shop@relay.example")
	assert.NotContains(t, strings.ToLower(string(out)), "reply+abc")
	assert.Equal(t, 2, strings.Count(string(out), "shop@relay.example"))
	assert.Equal(t, raw, ReplaceAddress(raw, "", "x"))
}
