package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/liamAduDonkor/adesua-sub000/core"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"

	maxSendAttempts = 3
)

type sendgridService struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	appTag     string
	sandbox    bool
	backoff    time.Duration
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

// NewSendgridService sends through the SendGrid v3 API. Delivery is fire and forget; failures are logged.
// In test mode the sandbox is on, so SendGrid validates messages without delivering them.
func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return newSendgridService(conf, logger, sendgridHost)
}

func newSendgridService(conf *core.Config, logger core.Logger, host string) *sendgridService {
	from := conf.DefaultFromEmail()
	return &sendgridService{
		key:        conf.SendgridAPIKey,
		host:       host,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		appTag:     conf.AppName + "-" + conf.Env,
		sandbox:    conf.TestMode,
		backoff:    time.Second,
		logger:     logger,
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := svc.deliver(msg); err != nil {
				svc.logger.Error("sending email", err, core.Fields{"template": msg.TemplateName, "args": msg.Args})
			}
		}()
	}
}

// deliver renders msg and posts it, retrying while SendGrid throttles or is unavailable.
func (svc *sendgridService) deliver(msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return nil
	}

	body := sgmail.GetRequestBody(svc.prepare(*msg))
	for attempt := 1; ; attempt++ {
		status, err := svc.post(body)
		switch {
		case err == nil:
			return nil
		case !retryable(status) || attempt == maxSendAttempts:
			return errors.Wrapf(err, "after %d attempt(s)", attempt)
		}
		svc.logger.Warn("email send failed, retrying", core.Fields{"attempt": attempt, "status": status})
		time.Sleep(svc.backoff * time.Duration(attempt))
	}
}

// post returns the response status, zero when the request never got one.
func (svc *sendgridService) post(body []byte) (int, error) {
	req := sendgrid.GetRequest(svc.key, sendgridEndpoint, svc.host)
	req.Method = http.MethodPost
	req.Body = body

	res, err := sendgrid.MakeRequest(req)
	if err != nil {
		return 0, err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return res.StatusCode, fmt.Errorf("status %d: %s", res.StatusCode, res.Body)
	}
	return res.StatusCode, nil
}

func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (svc *sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(sgEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(sgEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	for _, a := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     a.Content.String(),
			Type:        a.ContentType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}

	// SendGrid caps a message at 10 categories
	categories := append([]string{svc.appTag}, msg.Categories...)
	if msg.TemplateName != "" {
		categories = append(categories, msg.TemplateName)
	}
	if len(categories) > 10 {
		categories = categories[:10]
	}
	m.AddCategories(categories...)
	for k, v := range msg.Args {
		if v != "" {
			m.SetCustomArg(k, v)
		}
	}

	if svc.sandbox {
		m.SetMailSettings(sgmail.NewMailSettings().SetSandboxMode(sgmail.NewSetting(true)))
	}
	return m
}

func sgEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}
