// Package notify sends moderation and poll notifications via SMTP.
// Deliveries are best-effort: callers log failures and move on.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host           string
	Port           string
	Username       string
	Password       string
	From           string
	FromName       string
	ModeratorInbox string
}

type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if delivery is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != "" && s.config.ModeratorInbox != ""
}

func (s *Service) send(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("notifications not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type reportData struct {
	MessageID int64
	ReportID  int64
	Subject   string
	Comment   string
}

type moderationData struct {
	TopicID   int64
	Action    string
	BoardName string
}

type voteData struct {
	PollID   int64
	VoterID  int64
	Question string
}

// MessageReported notifies the moderator inbox about a new open report.
func (s *Service) MessageReported(ctx context.Context, messageID, reportID int64, subject, comment string) error {
	_ = ctx
	body, err := renderTemplate(reportTemplate, reportData{
		MessageID: messageID,
		ReportID:  reportID,
		Subject:   subject,
		Comment:   comment,
	})
	if err != nil {
		return fmt.Errorf("render report template: %w", err)
	}
	return s.send([]string{s.config.ModeratorInbox}, fmt.Sprintf("Message reported: %s", subject), body)
}

// TopicModerated notifies the moderator inbox about a move or lock.
func (s *Service) TopicModerated(ctx context.Context, topicID int64, action, boardName string) error {
	_ = ctx
	body, err := renderTemplate(moderationTemplate, moderationData{
		TopicID:   topicID,
		Action:    action,
		BoardName: boardName,
	})
	if err != nil {
		return fmt.Errorf("render moderation template: %w", err)
	}
	return s.send([]string{s.config.ModeratorInbox}, fmt.Sprintf("Topic %d %s", topicID, action), body)
}

// PollVoteCast notifies the moderator inbox about poll activity.
func (s *Service) PollVoteCast(ctx context.Context, pollID, voterID int64, question string) error {
	_ = ctx
	body, err := renderTemplate(voteTemplate, voteData{
		PollID:   pollID,
		VoterID:  voterID,
		Question: question,
	})
	if err != nil {
		return fmt.Errorf("render vote template: %w", err)
	}
	return s.send([]string{s.config.ModeratorInbox}, fmt.Sprintf("Poll vote: %s", question), body)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("notify").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportTemplate = `<!DOCTYPE html>
<html>
<body>
    <h2>Message reported</h2>
    <p>Report #{{.ReportID}} was opened on message #{{.MessageID}} ({{.Subject}}).</p>
    {{if .Comment}}<p>Reporter comment: {{.Comment}}</p>{{end}}
</body>
</html>`

const moderationTemplate = `<!DOCTYPE html>
<html>
<body>
    <h2>Topic {{.Action}}</h2>
    <p>Topic #{{.TopicID}} was {{.Action}} on board {{.BoardName}}.</p>
</body>
</html>`

const voteTemplate = `<!DOCTYPE html>
<html>
<body>
    <h2>Poll activity</h2>
    <p>Voter #{{.VoterID}} voted in poll #{{.PollID}}: {{.Question}}</p>
</body>
</html>`
