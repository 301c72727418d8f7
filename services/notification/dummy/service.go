package dummynotif

import (
	"sync"

	"github.com/trezcool/ada/core"
)

// Sent is one delivered batch, recorded for test assertions.
type Sent struct {
	Recipient     core.Recipient
	Notifications []core.Notification
}

// Service records notifications instead of delivering them.
type Service struct {
	mutex sync.Mutex
	sent  []Sent
}

var _ core.NotificationService = (*Service)(nil)

func NewService() *Service {
	return &Service{}
}

func (svc *Service) Notify(rcpt core.Recipient, notifications ...core.Notification) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	svc.sent = append(svc.sent, Sent{Recipient: rcpt, Notifications: notifications})
}

func (svc *Service) SentNotifications() []Sent {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	sent := make([]Sent, len(svc.sent))
	copy(sent, svc.sent)
	return sent
}

func (svc *Service) Reset() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	svc.sent = nil
}
