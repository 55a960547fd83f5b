package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrInvalidDestination is returned for empty destinations or ones containing line breaks.
var ErrInvalidDestination = errors.New("invalid notification destination")

// Func adapts a function to tokenauth.Notifier.
type Func func(ctx context.Context, destination, code string) error

// Deliver calls f.
func (f Func) Deliver(ctx context.Context, destination, code string) error {
	return f(ctx, destination, code)
}

// Outbox writes one line per code to w. It is meant for local development where no mail
// server is available.
type Outbox struct {
	mu sync.Mutex
	w  io.Writer
}

// NewOutbox returns an Outbox writing to w.
func NewOutbox(w io.Writer) *Outbox {
	return &Outbox{w: w}
}

// Deliver writes the code for destination.
func (o *Outbox) Deliver(ctx context.Context, destination, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkDestination(destination); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := fmt.Fprintf(o.w, "password reset code for %s: %s\n", destination, code)
	return err
}

func checkDestination(destination string) error {
	if strings.TrimSpace(destination) == "" || strings.ContainsAny(destination, "\r\n") {
		return ErrInvalidDestination
	}
	return nil
}
