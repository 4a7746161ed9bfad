// Package notifier delivers the alert digest to a human.
package notifier

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Notifier sends one message to one recipient. A nil error means the
// message was accepted for delivery.
type Notifier interface {
	Send(ctx context.Context, recipient, message string) error
}

// ConsoleNotifier prints the message instead of sending it. It is used for
// dry runs.
type ConsoleNotifier struct {
	out    io.Writer
	logger zerolog.Logger
}

// NewConsoleNotifier creates a notifier writing to out.
func NewConsoleNotifier(out io.Writer, logger zerolog.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{out: out, logger: logger}
}

func (n *ConsoleNotifier) Send(ctx context.Context, recipient, message string) error {
	n.logger.Info().Str("recipient", recipient).Msg("DRY RUN, would send:")
	rule := strings.Repeat("─", 50)
	_, err := fmt.Fprintf(n.out, "%s\n%s\n%s\n", rule, message, rule)
	return err
}
