package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore"
	"gopkg.in/gomail.v2"
)

var (
	ErrUnknownKind = errors.New("mailer: no template for notification kind")
	ErrNoRecipient = errors.New("mailer: notification has no recipient")
)

// Config is the SMTP relay and sender identity.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// AppName is substituted into subjects and bodies.
	AppName string
	// InsecureSkipVerify disables TLS certificate checks. Local relays only.
	InsecureSkipVerify bool
}

// Mailer implements authcore.Mailer.
type Mailer struct {
	cfg       Config
	templates map[authcore.NotificationKind]messageTemplate
	send      func(m *gomail.Message) error
}

// Option customises a Mailer.
type Option func(*Mailer) error

// WithSender replaces the SMTP dialer, e.g. with a gomail.SendFunc.
func WithSender(s gomail.Sender) Option {
	return func(m *Mailer) error {
		m.send = func(msg *gomail.Message) error {
			return gomail.Send(s, msg)
		}
		return nil
	}
}

// WithTemplate overrides or adds the subject and body for kind.
func WithTemplate(kind authcore.NotificationKind, subject, body string) Option {
	return func(m *Mailer) error {
		parsed, err := parseTemplates(map[authcore.NotificationKind][2]string{kind: {subject, body}})
		if err != nil {
			return err
		}
		m.templates[kind] = parsed[kind]
		return nil
	}
}

func New(cfg Config, opts ...Option) (*Mailer, error) {
	if cfg.From == "" {
		return nil, errors.New("mailer: From is required")
	}
	if cfg.AppName == "" {
		cfg.AppName = "authcore"
	}

	templates, err := parseTemplates(defaultTemplates)
	if err != nil {
		return nil, err
	}

	m := &Mailer{cfg: cfg, templates: templates}
	if cfg.Host != "" {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		if cfg.InsecureSkipVerify {
			d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host}
		}
		m.send = func(msg *gomail.Message) error {
			return d.DialAndSend(msg)
		}
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.send == nil {
		return nil, errors.New("mailer: Host or WithSender is required")
	}
	return m, nil
}

// Send renders n and hands it to the SMTP transport. gomail is not
// context-aware, so a cancelled ctx abandons the wait but not the dial.
func (m *Mailer) Send(ctx context.Context, n authcore.Notification) error {
	if n.To == "" {
		return ErrNoRecipient
	}
	tmpl, ok := m.templates[n.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}

	msg, err := m.compose(tmpl, n)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- m.send(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mailer: send %s: %w", n.Kind, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mailer) compose(tmpl messageTemplate, n authcore.Notification) (*gomail.Message, error) {
	name := n.Name
	if name == "" {
		name = n.To
	}
	subject, body, err := tmpl.render(templateData{
		Name:    name,
		AppName: m.cfg.AppName,
		Data:    n.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("mailer: render %s: %w", n.Kind, err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.cfg.From, m.cfg.FromName))
	msg.SetHeader("To", msg.FormatAddress(n.To, n.Name))
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return msg, nil
}
