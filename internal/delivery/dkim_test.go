package delivery

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/emersion/go-msgauth/dkim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliasrelay/backend/internal/config"
)

func generateKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return key, pemData
}

func TestDKIMSigner_SignVerifies(t *testing.T) {
	key, pemData := generateKey(t)
	signer, err := NewDKIMSigner("s1", pemData, nil)
	require.NoError(t, err)

	raw := []byte("From: shop@alias.example\r\nTo: jane@biz.example\r\nSubject: hello\r\n\r\nbody\r\n")
	signed, err := signer.Sign(context.Background(), raw, "alias.example")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(signed, []byte("DKIM-Signature:")))
	assert.True(t, bytes.HasSuffix(signed, raw))

	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	record := "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(pub)

	verifications, err := dkim.VerifyWithOptions(bytes.NewReader(signed), &dkim.VerifyOptions{
		LookupTXT: func(name string) ([]string, error) {
			assert.Equal(t, "s1._domainkey.alias.example", name)
			return []string{record}, nil
		},
	})
	require.NoError(t, err)
	require.Len(t, verifications, 1)
	assert.NoError(t, verifications[0].Err)
	assert.Equal(t, "alias.example", verifications[0].Domain)
}

func TestDKIMSigner_InvalidKey(t *testing.T) {
	_, err := NewDKIMSigner("s1", []byte("not a key"), nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLoadSigner(t *testing.T) {
	t.Run("未配置私钥时不签名", func(t *testing.T) {
		s, err := LoadSigner(config.DKIMConfig{}, nil)
		require.NoError(t, err)
		assert.IsType(t, NopSigner{}, s)
	})

	t.Run("从文件加载", func(t *testing.T) {
		_, pemData := generateKey(t)
		path := filepath.Join(t.TempDir(), "dkim.pem")
		require.NoError(t, os.WriteFile(path, pemData, 0o600))

		s, err := LoadSigner(config.DKIMConfig{Selector: "s1", PrivateKeyPath: path}, nil)
		require.NoError(t, err)
		assert.IsType(t, &DKIMSigner{}, s)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := LoadSigner(config.DKIMConfig{Selector: "s1", PrivateKeyPath: "/nonexistent/dkim.pem"}, nil)
		assert.Error(t, err)
	})
}
