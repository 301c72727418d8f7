package notifsvc

import (
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/ada/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// sendgridService delivers notifications by email.
type sendgridService struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	baseURL    string
	logger     core.Logger
}

var _ core.NotificationService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.NotificationService {
	return &sendgridService{
		key:        conf.SendgridAPIKey,
		from:       sgmail.NewEmail(conf.AppName, conf.DefaultFromEmail),
		subjPrefix: "[" + conf.AppName + "] ",
		baseURL:    conf.FrontendBaseURL,
		logger:     logger,
	}
}

func (svc *sendgridService) Notify(rcpt core.Recipient, notifications ...core.Notification) {
	if rcpt.Email == "" {
		return // no address on file; nothing to deliver
	}
	for _, n := range notifications {
		n := n
		go svc.send(rcpt, n)
	}
}

func (svc *sendgridService) send(rcpt core.Recipient, n core.Notification) {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + n.Title
	p.AddTos(sgmail.NewEmail(rcpt.Name, rcpt.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	body := n.Description
	if n.Href != "" {
		body += "\r\n\r\n" + svc.baseURL + n.Href
	}
	m.AddContent(sgmail.NewContent("text/plain", body))

	req := sendgrid.GetRequest(svc.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil || res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending notification mail to %s", rcpt.Email), err)
	}
}
