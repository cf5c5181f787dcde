package emailsvc

import (
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/mtihani/core"
)

type sendgridService struct {
	conf   *core.Config
	logger core.Logger
	client *sendgrid.Client
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return &sendgridService{
		conf:   conf,
		logger: logger,
		client: sendgrid.NewSendClient(conf.SendgridAPIKey),
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	from := sgmail.NewEmail(svc.conf.AppName, svc.conf.DefaultFromEmail)
	for _, msg := range messages {
		if !msg.HasRecipients() || !msg.HasContent() {
			continue
		}
		if err := svc.send(from, msg); err != nil {
			svc.logger.Error("sending email failed", err, map[string]interface{}{"subject": msg.Subject})
		}
	}
}

func (svc *sendgridService) send(from *sgmail.Email, msg *core.EmailMessage) error {
	m := sgmail.NewV3Mail()
	m.SetFrom(from)
	m.Subject = msg.Subject
	m.AddContent(sgmail.NewContent("text/plain", msg.Body))

	p := sgmail.NewPersonalization()
	p.AddTos(toSGEmails(msg.To)...)
	if len(msg.Cc) > 0 {
		p.AddCCs(toSGEmails(msg.Cc)...)
	}
	if len(msg.Bcc) > 0 {
		p.AddBCCs(toSGEmails(msg.Bcc)...)
	}
	m.AddPersonalizations(p)

	_, err := svc.client.Send(m)
	return err
}

func toSGEmails(addrs []mail.Address) []*sgmail.Email {
	emails := make([]*sgmail.Email, 0, len(addrs))
	for _, addr := range addrs {
		emails = append(emails, sgmail.NewEmail(addr.Name, addr.Address))
	}
	return emails
}
