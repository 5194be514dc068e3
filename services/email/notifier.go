package emailsvc

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
)

const (
	templateReady  = "report_ready"
	templateFailed = "report_failed"
)

type (
	readyData struct {
		Title      string
		Format     report.Format
		InstanceID string
	}

	failedData struct {
		Title      string
		Reason     string
		Retryable  bool
		InstanceID string
	}
)

// Notifier mails the recipients of a definition when one of its instances completes or fails.
type Notifier struct {
	mail   core.EmailService
	conf   *core.Config
	logger core.Logger
}

var _ report.Notifier = (*Notifier)(nil)

func NewNotifier(mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Notifier {
	return &Notifier{mail: mailSvc, conf: conf, logger: logger}
}

func (n *Notifier) Notify(_ context.Context, nt report.Notification) error {
	to, err := parseRecipients(nt.Recipients)
	if err != nil {
		return err
	}
	if len(to) == 0 {
		return nil
	}

	title := nt.Definition.Title
	if title == "" {
		title = string(nt.Definition.Type)
	}

	msg := &core.EmailMessage{
		To:         to,
		Categories: []string{"reports", string(nt.Definition.Type), string(nt.Event)},
		Args: map[string]string{
			"definition_id": nt.Definition.ID,
			"instance_id":   nt.Instance.ID,
		},
	}
	switch nt.Event {
	case report.EventCompleted:
		msg.Subject = title + " is ready"
		msg.TemplateName = templateReady
		msg.TemplateData = readyData{Title: title, Format: nt.Definition.OutputFormat, InstanceID: nt.Instance.ID}
	case report.EventFailed:
		data := failedData{Title: title, InstanceID: nt.Instance.ID, Reason: string(report.ReasonInternal)}
		if f := nt.Instance.Failure; f != nil {
			data.Reason = string(f.Reason)
			data.Retryable = f.Retryable
		}
		msg.Subject = title + " failed"
		msg.TemplateName = templateFailed
		msg.TemplateData = data
	default:
		return nil
	}
	msg.Configure(n.conf)

	n.mail.SendMessages(msg)
	n.logger.Debug("report email queued", core.Fields{"event": string(nt.Event), "instance": nt.Instance.ID, "recipients": len(to)})
	return nil
}

func parseRecipients(recipients []string) ([]mail.Address, error) {
	addrs := make([]mail.Address, 0, len(recipients))
	for _, r := range recipients {
		addr, err := mail.ParseAddress(r)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("parsing recipient %q", r))
		}
		addrs = append(addrs, *addr)
	}
	return addrs, nil
}
