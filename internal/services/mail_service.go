package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"path/filepath"
	"strings"

	"cinelog/internal/logger"

	"github.com/sirupsen/logrus"
)

// MailConfig holds SMTP settings; mail is disabled unless all are set.
type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	SiteURL  string
}

type MailService struct {
	cfg         MailConfig
	Enabled     bool
	templateDir string
	send        func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailService(cfg MailConfig) *MailService {
	enabled := cfg.Host != "" && cfg.Port != "" && cfg.Username != "" && cfg.Password != "" && cfg.From != ""
	if !enabled {
		logger.For(nil).Warn("MailService disabled: missing SMTP settings")
	}

	return &MailService{
		cfg:         cfg,
		Enabled:     enabled,
		templateDir: filepath.Join("web", "templates", "email"),
		send:        smtp.SendMail,
	}
}

func buildMessage(from string, to []string, subject, body string) []byte {
	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	return []byte(fmt.Sprintf("To: %s\r\n"+
		"From: cinelog <%s>\r\n"+
		"Subject: %s\r\n"+
		"%s\r\n%s", strings.Join(to, ","), from, subject, mime, body))
}

func (s *MailService) sendAsync(to []string, subject string, body string) {
	if !s.Enabled {
		return
	}

	go func() {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

		log := logger.For(nil).WithFields(logrus.Fields{"to": to, "subject": subject})
		if err := s.send(addr, auth, s.cfg.From, to, buildMessage(s.cfg.From, to, subject, body)); err != nil {
			log.WithError(err).Error("Failed to send email")
			return
		}
		log.Info("Email sent")
	}()
}

func (s *MailService) parseTemplate(templateName string, data interface{}) (string, error) {
	path := filepath.Join(s.templateDir, templateName)
	t, err := template.ParseFiles(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", templateName, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}
	return buf.String(), nil
}

// SendReplyNotification tells a comment author that someone replied.
func (s *MailService) SendReplyNotification(to, replier, movieTitle, replyText, originalText, link string) {
	if !s.Enabled {
		return
	}
	data := map[string]string{
		"Replier":      replier,
		"MovieTitle":   movieTitle,
		"ReplyText":    replyText,
		"OriginalText": originalText,
		"Link":         s.cfg.SiteURL + link,
	}
	body, err := s.parseTemplate("reply.html", data)
	if err != nil {
		logger.For(nil).WithError(err).Error("Error rendering reply email")
		return
	}
	s.sendAsync([]string{to}, fmt.Sprintf("%s replied to your comment on %s", replier, movieTitle), body)
}
