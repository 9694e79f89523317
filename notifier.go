package auth

import "context"

// Notification carries everything an outbound channel needs to reach a user.
// Token holds the raw one time token; it is never persisted, only delivered.
type Notification struct {
	Kind     TokenKind
	Email    string
	UserID   string
	Token    string
	Metadata map[string]any
}

// Notifier delivers one time tokens to users, typically over email. Delivery
// failures are reported to the caller but must never leak token material into
// error messages.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, notification Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, notification Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, notification)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
