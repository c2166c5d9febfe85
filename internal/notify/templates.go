package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(kind Kind, subject, body string) mailTemplate {
	return mailTemplate{
		subject: template.Must(template.New(string(kind) + ".subject").Option("missingkey=error").Parse(subject)),
		body:    template.Must(template.New(string(kind) + ".body").Option("missingkey=error").Parse(body)),
	}
}

var templates = map[Kind]mailTemplate{
	KindDirectoryAliasDenied: mustTemplate(KindDirectoryAliasDenied,
		`Alias {{.alias}} cannot be created`,
		`Hi {{.name}},

Somebody tried to send an email to {{.alias}}, an address under your directory "{{.directory}}".
The alias was not created because your plan does not allow new aliases.

Upgrade your plan or remove unused aliases to receive emails sent to new directory addresses.
`),
	KindDomainAliasDenied: mustTemplate(KindDomainAliasDenied,
		`Alias {{.alias}} cannot be created`,
		`Hi {{.name}},

Somebody tried to send an email to {{.alias}} on your domain {{.domain}}.
The alias was not created because your plan does not allow new aliases.

Upgrade your plan or remove unused aliases to keep catch-all working on {{.domain}}.
`),
	KindReplyMustUseMailbox: mustTemplate(KindReplyMustUseMailbox,
		`Reply from your alias {{.alias}} only works from your mailbox`,
		`Hi {{.name}},

An email was sent to one of your reply addresses from {{.sender}}.
Replies through your alias {{.alias}} are only accepted from your mailbox {{.mailbox}}.

The email was not delivered. If you sent it, please send it again from {{.mailbox}}.
`),
	KindSenderNotAllowed: mustTemplate(KindSenderNotAllowed,
		`Your email ({{.sender}}) is not allowed to send emails to {{.reply_email}}`,
		`Hi,

Your email ({{.sender}}) is not allowed to send emails to {{.reply_email}}.
The email was not delivered.
`),
}

// Render 渲染通知的主题与正文。
func Render(n Notification) (subject, body string, err error) {
	tpl, ok := templates[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownKind, n.Kind)
	}

	var sb, bb bytes.Buffer
	if err := tpl.subject.Execute(&sb, n.Data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", n.Kind, err)
	}
	if err := tpl.body.Execute(&bb, n.Data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", n.Kind, err)
	}
	return sb.String(), bb.String(), nil
}
