// Package notify reports pipeline outcomes to optional sinks. A run
// of the pipeline can take hours, so contributors typically want a
// ping when an attempt finishes rather than a terminal to babysit.
package notify

import (
	"fmt"

	"github.com/dereneaton/kmunity/internal/domain"
)

// Notification describes one finished pipeline attempt.
type Notification struct {
	Run      string
	Category domain.Category
	Outcome  domain.Outcome
	Message  string
}

// Title renders a one-line summary suitable for a message heading.
func (n Notification) Title() string {
	return fmt.Sprintf("kmunity %s: %s (%s)", n.Outcome, n.Run, n.Category)
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
