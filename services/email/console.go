package emailsvc

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/trezcool/mtihani/core"
)

// consoleService writes emails to stdout. Debug use only.
type consoleService struct {
	conf *core.Config
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config) core.EmailService {
	return &consoleService{conf: conf}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	from := mail.Address{Name: svc.conf.AppName, Address: svc.conf.DefaultFromEmail}
	for _, msg := range messages {
		if !msg.HasRecipients() || !msg.HasContent() {
			continue
		}
		fmt.Printf(
			"From: %s\nTo: %s\nSubject: %s\n\n%s\n%s\n",
			from.String(), formatAddresses(msg.To), msg.Subject, msg.Body,
			strings.Repeat("-", 70),
		)
	}
}

func formatAddresses(addrs []mail.Address) string {
	strs := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		strs = append(strs, addr.String())
	}
	return strings.Join(strs, ", ")
}
