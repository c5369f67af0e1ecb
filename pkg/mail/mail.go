/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"crypto/tls"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/dbops/toolkit/pkg/config"
	"github.com/dbops/toolkit/pkg/metrics"
)

// Transport performs one delivery attempt for one task. Implementations
// must normalize every outcome into a Result; the dispatcher's retry logic
// only ever sees OK plus a message.
type Transport interface {
	Send(t *Task) Result
}

// SMTPTransport renders task payloads into MIME messages and delivers them
// over SMTP. Template payloads become HTML bodies; direct payloads carry
// their own content.
type SMTPTransport struct {
	cfg      config.Mail
	renderer *Renderer
	log      *zap.Logger
	send     func(m *gomail.Message) error
}

// NewSMTPTransport builds a transport from the mail configuration. The
// connection is dialed per message, matching how notification volume in
// this toolkit looks: occasional bursts, long idle stretches.
func NewSMTPTransport(cfg config.Mail, log *zap.Logger) (*SMTPTransport, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("loading mail templates: %w", err)
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.UseSSL
	if cfg.InsecureSkipVerify {
		dialer.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host} //nolint:gosec
	}
	return &SMTPTransport{
		cfg:      cfg,
		renderer: renderer,
		log:      log,
		send:     func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}, nil
}

// Send composes and delivers the task's email. Dial failures come back as
// retryable failed Results; a task that cannot be composed at all, such as
// one naming no recipients, is a permanent failure since retrying delivers
// the same broken task.
func (s *SMTPTransport) Send(t *Task) Result {
	if len(t.Payload.Recipients()) == 0 {
		return Result{OK: false, Permanent: true,
			Message: fmt.Sprintf("%s has no recipients and no default recipients are configured", t.Describe())}
	}
	m, err := s.compose(t)
	if err != nil {
		return Result{OK: false, Permanent: true, Message: fmt.Sprintf("composing %s: %v", t.Describe(), err)}
	}
	if err := s.send(m); err != nil {
		metrics.MailSendFailure.WithLabelValues(s.cfg.Host).Inc()
		return Result{OK: false, Message: fmt.Sprintf("smtp delivery via %s:%d failed: %v", s.cfg.Host, s.cfg.Port, err)}
	}
	metrics.MailSendSuccess.WithLabelValues(s.cfg.Host).Inc()
	return Result{OK: true, Message: "delivered"}
}

func (s *SMTPTransport) compose(t *Task) (*gomail.Message, error) {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.SenderAddress, s.senderName())
	m.SetHeader("To", t.Payload.Recipients()...)

	branding := s.renderer.BrandingFrom(s.cfg)
	switch p := t.Payload.(type) {
	case BackupPayload:
		body, err := s.renderer.RenderBackup(p, branding)
		if err != nil {
			return nil, err
		}
		m.SetHeader("Subject", fmt.Sprintf("%s - %s backup finished", branding.SiteName, backupTitle(p.BackupType)))
		m.SetBody("text/html", body)
	case ErrorPayload:
		body, err := s.renderer.RenderError(p, branding)
		if err != nil {
			return nil, err
		}
		m.SetHeader("Subject", fmt.Sprintf("%s - %s alert", branding.SiteName, p.ErrorType))
		m.SetBody("text/html", body)
	case CustomPayload:
		body, err := s.renderer.RenderCustom(p, branding)
		if err != nil {
			return nil, err
		}
		m.SetHeader("Subject", p.Title)
		m.SetBody("text/html", body)
	case DirectPayload:
		if len(p.CC) > 0 {
			m.SetHeader("Cc", p.CC...)
		}
		if len(p.BCC) > 0 {
			m.SetHeader("Bcc", p.BCC...)
		}
		m.SetHeader("Subject", p.Subject)
		if p.ContentType == "plain" {
			m.SetBody("text/plain", p.Content)
		} else {
			m.SetBody("text/html", p.Content)
		}
	default:
		return nil, fmt.Errorf("no composer for payload kind %q", t.Kind)
	}

	s.attach(m, t.Payload.Attachments())
	return m, nil
}

// attach adds each attachment to the message. A missing file is skipped
// with a warning instead of failing the whole delivery.
func (s *SMTPTransport) attach(m *gomail.Message, files []Attachment) {
	for _, f := range files {
		switch {
		case len(f.Content) > 0:
			content := f.Content
			m.Attach(f.Name, gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}))
		case f.Path != "":
			if _, err := os.Stat(f.Path); err != nil {
				s.log.Warn("skipping unreadable mail attachment",
					zap.String("name", f.Name),
					zap.String("path", f.Path),
					zap.Error(err))
				continue
			}
			if f.Name != "" {
				m.Attach(f.Path, gomail.Rename(f.Name))
			} else {
				m.Attach(f.Path)
			}
		default:
			s.log.Warn("skipping empty mail attachment", zap.String("name", f.Name))
		}
	}
}

func (s *SMTPTransport) senderName() string {
	if s.cfg.SenderName != "" {
		return s.cfg.SenderName
	}
	return s.cfg.SiteName
}

func backupTitle(backupType string) string {
	switch backupType {
	case "database":
		return "database"
	case "files":
		return "file"
	case "full":
		return "full"
	default:
		return "data"
	}
}
