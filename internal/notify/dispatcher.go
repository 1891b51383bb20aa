package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/pkg/logger"
	"github.com/rajkayal/hubauth/pkg/mail"
)

// Delivery describes the result of sending a code.
type Delivery struct {
	MessageID  string
	PreviewURL string
}

// Dispatcher delivers one-time codes to users.
type Dispatcher interface {
	Send(ctx context.Context, email, code, purpose string) (*Delivery, error)
}

// EmailDispatcher sends codes over SMTP.
type EmailDispatcher struct {
	mailer mail.Mailer
	from   string
}

// NewEmailDispatcher builds a dispatcher on top of the mail package.
func NewEmailDispatcher(mailer mail.Mailer, from string) (*EmailDispatcher, error) {
	if mailer == nil {
		return nil, errors.New("notify: mailer is required")
	}
	return &EmailDispatcher{mailer: mailer, from: from}, nil
}

// Send emails the code and returns a delivery receipt.
func (d *EmailDispatcher) Send(ctx context.Context, email, code, purpose string) (*Delivery, error) {
	msg := mail.Message{
		From:    d.from,
		To:      []string{email},
		Subject: subjectFor(purpose),
		Body:    bodyFor(code, purpose),
		HTML:    true,
	}

	if err := d.mailer.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("notify: send code email: %w", err)
	}

	return &Delivery{MessageID: uuid.NewString()}, nil
}

func subjectFor(purpose string) string {
	switch purpose {
	case models.PurposeRegistration:
		return "Confirm your registration"
	case models.PurposePasswordReset:
		return "Reset your password"
	default:
		return "Your verification code"
	}
}

func bodyFor(code, purpose string) string {
	action := "continue signing in"
	switch purpose {
	case models.PurposeRegistration:
		action = "finish creating your account"
	case models.PurposePasswordReset:
		action = "reset your password"
	}

	return fmt.Sprintf(
		"<p>Use the code below to %s. It expires in 5 minutes.</p>"+
			"<p style=\"font-size:28px;letter-spacing:6px;font-weight:bold\">%s</p>"+
			"<p>If you did not request this code, you can ignore this email.</p>",
		action, code,
	)
}

// LogDispatcher writes codes to the application log instead of sending
// them. Intended for local development without an SMTP server.
type LogDispatcher struct {
	log *zap.Logger
}

// NewLogDispatcher builds a dispatcher that only logs.
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{log: logger.WithModule("notify")}
}

// Send records the code in the log and returns a synthetic receipt.
func (d *LogDispatcher) Send(_ context.Context, email, code, purpose string) (*Delivery, error) {
	id := uuid.NewString()
	d.log.Info("one-time code issued",
		zap.String("email", email),
		zap.String("code", code),
		zap.String("purpose", purpose),
		zap.String("message_id", id),
	)
	return &Delivery{MessageID: id, PreviewURL: "log://" + id}, nil
}
