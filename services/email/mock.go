package emailsvc

import (
	"sync"

	"github.com/trezcool/mtihani/core"
)

// ServiceMock records sent messages for assertions in tests.
type ServiceMock struct {
	mutex        sync.Mutex
	SentMessages []*core.EmailMessage
}

var _ core.EmailService = (*ServiceMock)(nil)

func NewServiceMock() *ServiceMock {
	return &ServiceMock{SentMessages: make([]*core.EmailMessage, 0)}
}

func (svc *ServiceMock) SendMessages(messages ...*core.EmailMessage) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	for _, msg := range messages {
		if msg.HasRecipients() && msg.HasContent() {
			svc.SentMessages = append(svc.SentMessages, msg)
		}
	}
}

// Reset drops all recorded messages.
func (svc *ServiceMock) Reset() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	svc.SentMessages = make([]*core.EmailMessage, 0)
}
