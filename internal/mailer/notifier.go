package mailer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"medvision-server/internal/logger"
)

// Notifier renders and sends the application's emails. Every method is
// best-effort and only logs failures.
type Notifier struct {
	sender    Sender
	templates *Templates
	appURL    string
	location  *time.Location
	log       *logrus.Entry
}

// NewNotifier creates a notifier. Dates are rendered in loc.
func NewNotifier(sender Sender, templates *Templates, appURL string, loc *time.Location, log *logger.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		sender:    sender,
		templates: templates,
		appURL:    appURL,
		location:  loc,
		log:       log.WithComponent("notifier"),
	}
}

type welcomeData struct {
	Name   string
	Email  string
	AppURL string
}

type codeData struct {
	Name             string
	Code             string
	ExpiresInMinutes int
}

type appointmentData struct {
	DoctorName  string
	PatientName string
	Date        string
	Reason      string
	RoomURL     string
}

// Welcome greets a newly registered account.
func (n *Notifier) Welcome(ctx context.Context, to, name string) {
	n.deliver(ctx, to, TemplateWelcome, welcomeData{Name: name, Email: to, AppURL: n.appURL})
}

// ResetCode sends a password reset code.
func (n *Notifier) ResetCode(ctx context.Context, to, name, code string, ttl time.Duration) {
	n.deliver(ctx, to, TemplateResetCode, codeData{Name: name, Code: code, ExpiresInMinutes: int(ttl.Minutes())})
}

// LoginCode sends a patient one-time login code.
func (n *Notifier) LoginCode(ctx context.Context, to, name, code string, ttl time.Duration) {
	n.deliver(ctx, to, TemplateLoginCode, codeData{Name: name, Code: code, ExpiresInMinutes: int(ttl.Minutes())})
}

// AppointmentScheduled tells the doctor about a new booking.
func (n *Notifier) AppointmentScheduled(ctx context.Context, to, doctorName, patientName string, at time.Time, reason, roomURL string) {
	n.deliver(ctx, to, TemplateAppointmentScheduled, appointmentData{
		DoctorName:  doctorName,
		PatientName: patientName,
		Date:        n.formatDate(at),
		Reason:      reason,
		RoomURL:     roomURL,
	})
}

// AppointmentCancelled tells the doctor a booking was cancelled.
func (n *Notifier) AppointmentCancelled(ctx context.Context, to, doctorName, patientName string, at time.Time) {
	n.deliver(ctx, to, TemplateAppointmentCancelled, appointmentData{
		DoctorName:  doctorName,
		PatientName: patientName,
		Date:        n.formatDate(at),
	})
}

func (n *Notifier) formatDate(t time.Time) string {
	return t.In(n.location).Format("02/01/2006 15:04")
}

func (n *Notifier) deliver(ctx context.Context, to, templateID string, data interface{}) {
	entry := n.log.WithFields(logrus.Fields{"to": to, "template": templateID})
	if to == "" {
		entry.Debug("email skipped: no recipient")
		return
	}
	subject, body, err := n.templates.Render(templateID, data)
	if err != nil {
		entry.WithError(err).Error("email render failed")
		return
	}
	if err := n.sender.Send(ctx, to, subject, body); err != nil {
		entry.WithError(err).Warn("email delivery failed")
	}
}
