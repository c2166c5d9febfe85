package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/config"
)

// SendEmailAPI SES v2 SendEmail 操作，测试时可替换
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport 通过 AWS SES v2 原始邮件接口投递。
type SESTransport struct {
	client SendEmailAPI
	log    *zap.Logger
}

// NewSESTransport 根据配置加载 AWS 凭证并创建 SES 出站通道。
func NewSESTransport(ctx context.Context, cfg config.OutboundConfig, log *zap.Logger) (*SESTransport, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.SESRegion)}
	if cfg.SESAccessKey != "" && cfg.SESSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SESAccessKey, cfg.SESSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESTransportWithClient(sesv2.NewFromConfig(awsCfg), log), nil
}

// NewSESTransportWithClient 使用指定客户端创建 SES 出站通道。
func NewSESTransportWithClient(client SendEmailAPI, log *zap.Logger) *SESTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &SESTransport{client: client, log: log.Named("ses_transport")}
}

// Send 实现 Transport。邮件已由调用方签名，这里按原始字节提交。
func (t *SESTransport) Send(ctx context.Context, msg *Outbound) error {
	if len(msg.Recipients) == 0 {
		return ErrNoRecipient
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: msg.Recipients},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: msg.Data},
		},
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	t.log.Debug("message accepted by ses",
		zap.String("mail_from", msg.From),
		zap.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}

// NewTransport 按 Outbound.Provider 选择出站通道。
func NewTransport(ctx context.Context, cfg config.OutboundConfig, log *zap.Logger) (Transport, error) {
	switch cfg.Provider {
	case "ses":
		return NewSESTransport(ctx, cfg, log)
	case "", "smtp":
		return NewSMTPTransport(cfg.SMTPAddr, cfg.HeloDomain, log), nil
	default:
		return nil, fmt.Errorf("unknown outbound provider %q", cfg.Provider)
	}
}
