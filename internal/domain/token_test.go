package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRecipient(t *testing.T) {
	tests := []struct {
		address string
		want    TokenKind
	}{
		{"reply+abcdef@relay.example", TokenKindReply},
		{"REPLY+abcdef@relay.example", TokenKindReply},
		{"ra+xyz@relay.example", TokenKindReverseAlias},
		{"shop@relay.example", TokenKindNone},
		{"replyto@relay.example", TokenKindNone},
		{"sales+ra+x@relay.example", TokenKindNone},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRecipient(tt.address))
		})
	}
}

func TestTokenKind_Table(t *testing.T) {
	assert.Equal(t, "reply+", TokenKindReply.Prefix())
	assert.Equal(t, 30, TokenKindReply.DefaultLength())
	assert.Equal(t, "ra+", TokenKindReverseAlias.Prefix())
	assert.Equal(t, 25, TokenKindReverseAlias.DefaultLength())
	assert.Equal(t, "", TokenKindNone.Prefix())
	assert.Equal(t, "reverse_alias", TokenKindReverseAlias.String())
}
