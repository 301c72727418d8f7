package notifsvc

import (
	"log"

	"github.com/trezcool/ada/core"
)

// consoleService prints notifications to stdout; DEV only.
type consoleService struct {
	appName string
}

var _ core.NotificationService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config) core.NotificationService {
	return &consoleService{appName: conf.AppName}
}

func (svc consoleService) Notify(rcpt core.Recipient, notifications ...core.Notification) {
	for _, n := range notifications {
		log.Printf("[%s] notification for %s <%s>: %s - %s (%s)", svc.appName, rcpt.Name, rcpt.UserID, n.Title, n.Description, n.Href)
	}
}
