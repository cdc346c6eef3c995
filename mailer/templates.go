package mailer

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/MrEthical07/authcore"
)

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

// templateData is what every template sees.
type templateData struct {
	Name    string
	AppName string
	Data    map[string]string
}

var defaultTemplates = map[authcore.NotificationKind][2]string{
	authcore.NotifyAccountLocked: {
		"Your {{.AppName}} account has been locked",
		`Hi {{.Name}},

Your account was locked after repeated failed sign-in attempts.
{{- with index .Data "until"}}
It will unlock automatically at {{.}}.
{{- else}}
An administrator must unlock it.
{{- end}}
{{- with index .Data "reason"}}

Reason: {{.}}
{{- end}}

If this was not you, reset your password once access is restored.
`,
	},
	authcore.NotifyPasswordChanged: {
		"Your {{.AppName}} password was changed",
		`Hi {{.Name}},

Your password was just changed and every active session was signed out.
If you did not make this change, contact support immediately.
`,
	},
	authcore.NotifyTwoFactorEnabled: {
		"Two-factor authentication enabled on {{.AppName}}",
		`Hi {{.Name}},

Two-factor authentication is now enabled on your account.
Store your backup codes somewhere safe; each one works once.
`,
	},
	authcore.NotifyTwoFactorDisabled: {
		"Two-factor authentication disabled on {{.AppName}}",
		`Hi {{.Name}},

Two-factor authentication was turned off for your account.
If you did not request this, contact support immediately.
`,
	},
	authcore.NotifyImpersonationGrant: {
		"An administrator can access your {{.AppName}} account",
		`Hi {{.Name}},

{{index .Data "actor"}} was granted one-time access to your account for support purposes.
`,
	},
}

func parseTemplates(src map[authcore.NotificationKind][2]string) (map[authcore.NotificationKind]messageTemplate, error) {
	out := make(map[authcore.NotificationKind]messageTemplate, len(src))
	for kind, pair := range src {
		subject, err := template.New(string(kind) + ".subject").Option("missingkey=zero").Parse(pair[0])
		if err != nil {
			return nil, fmt.Errorf("mailer: parse %s subject: %w", kind, err)
		}
		body, err := template.New(string(kind) + ".body").Option("missingkey=zero").Parse(pair[1])
		if err != nil {
			return nil, fmt.Errorf("mailer: parse %s body: %w", kind, err)
		}
		out[kind] = messageTemplate{subject: subject, body: body}
	}
	return out, nil
}

func (t messageTemplate) render(data templateData) (string, string, error) {
	var subject, body strings.Builder
	if err := t.subject.Execute(&subject, data); err != nil {
		return "", "", err
	}
	if err := t.body.Execute(&body, data); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}
