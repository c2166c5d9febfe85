package delivery

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/emersion/go-msgauth/dkim"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/config"
)

// ErrInvalidKey DKIM 私钥无法解析
var ErrInvalidKey = errors.New("invalid dkim private key")

// signedHeaders 参与签名的头部
var signedHeaders = []string{
	"From", "To", "Cc", "Subject", "Date", "Message-ID", "Reply-To",
	"In-Reply-To", "References", "MIME-Version", "Content-Type",
	"Content-Transfer-Encoding", "List-Unsubscribe", "List-Unsubscribe-Post",
}

// DKIMSigner 使用同一把私钥、按邮件所属域名签名。
//
// 私钥以 PEM 形式保存在 memguard 加密内存中，仅在签名时解密。
type DKIMSigner struct {
	selector string
	key      *memguard.Enclave
	log      *zap.Logger
}

// NewDKIMSigner 从 PEM 数据创建签名器，pemData 会被清零。
func NewDKIMSigner(selector string, pemData []byte, log *zap.Logger) (*DKIMSigner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := parsePrivateKey(pemData); err != nil {
		memguard.WipeBytes(pemData)
		return nil, err
	}
	return &DKIMSigner{
		selector: selector,
		key:      memguard.NewEnclave(pemData),
		log:      log.Named("dkim"),
	}, nil
}

// LoadSigner 根据配置创建签名器，未配置私钥时返回 NopSigner。
func LoadSigner(cfg config.DKIMConfig, log *zap.Logger) (Signer, error) {
	if cfg.PrivateKeyPath == "" {
		return NopSigner{}, nil
	}
	data, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read dkim key: %w", err)
	}
	return NewDKIMSigner(cfg.Selector, data, log)
}

// Sign 实现 Signer，使用 relaxed/relaxed 规范化。
func (s *DKIMSigner) Sign(_ context.Context, raw []byte, signingDomain string) ([]byte, error) {
	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open dkim key: %w", err)
	}
	defer buf.Destroy()

	key, err := parsePrivateKey(buf.Bytes())
	if err != nil {
		return nil, err
	}

	opts := &dkim.SignOptions{
		Domain:                 signingDomain,
		Selector:               s.selector,
		Signer:                 key,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
		HeaderKeys:             signedHeaders,
	}

	var out bytes.Buffer
	if err := dkim.Sign(&out, bytes.NewReader(raw), opts); err != nil {
		return nil, fmt.Errorf("dkim sign for %s: %w", signingDomain, err)
	}
	s.log.Debug("message signed", zap.String("domain", signingDomain), zap.String("selector", s.selector))
	return out.Bytes(), nil
}

func parsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidKey
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		switch k := key.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case ed25519.PrivateKey:
			return k, nil
		}
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, key)
	default:
		return nil, fmt.Errorf("%w: unexpected pem block %q", ErrInvalidKey, block.Type)
	}
}
