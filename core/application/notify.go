package application

import (
	"fmt"
	"net/mail"

	"github.com/trezcool/tukio/core"
	"github.com/trezcool/tukio/core/event"
)

// notifyStatusChange fires a status-update email to the applicant and the
// configured recipient list. Delivery is fully decoupled from lifecycle
// correctness: the email service is asynchronous and absorbs its own
// failures, and an empty recipient set is a no-op.
func (svc *Service) notifyStatusChange(app Application, evt event.Event) {
	if svc.mailSvc == nil {
		return
	}

	to := make([]mail.Address, 0, 1+len(svc.conf.Notify.ApplicationEmails))
	if app.StudentEmail != "" {
		to = append(to, mail.Address{Name: app.StudentName, Address: app.StudentEmail})
	}
	for _, addr := range svc.conf.Notify.ApplicationEmails {
		to = append(to, mail.Address{Address: addr})
	}

	title := evt.Title
	if title == "" {
		title = app.EventID
	}
	msg := &core.EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("Application %s: %s", app.Status, title),
		Body:    statusChangeBody(app, title),
	}
	svc.mailSvc.SendMessages(msg)
}

func statusChangeBody(app Application, title string) string {
	switch app.Status {
	case StatusApproved:
		return fmt.Sprintf("Good news %s! Your application for %q has been approved.", app.StudentName, title)
	case StatusRejected:
		return fmt.Sprintf(
			"Hello %s, your application for %q has been rejected.\nReason: %s",
			app.StudentName, title, app.RejectionReason.String,
		)
	default:
		return fmt.Sprintf("Hello %s, your application for %q is now %s.", app.StudentName, title, app.Status)
	}
}
