package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/smukkama/gr20-alert/internal/protocol"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notifier delivers a report on one channel.
type Notifier interface {
	Notify(ctx context.Context, msg *protocol.ReportMessage) error
}

// Dispatcher fans a report out to its channels.
type Dispatcher struct {
	notifiers map[string]Notifier
	defaults  []string
	log       zerolog.Logger
}

// NewDispatcher uses defaults for messages that name no channel.
func NewDispatcher(defaults []string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{notifiers: make(map[string]Notifier), defaults: defaults, log: log}
}

// Register adds the notifier of a channel.
func (d *Dispatcher) Register(channel string, n Notifier) {
	d.notifiers[channel] = n
}

// Dispatch delivers msg on every channel; one failing channel does not
// stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *protocol.ReportMessage) error {
	channels := msg.Channels
	if len(channels) == 0 {
		channels = d.defaults
	}
	if len(channels) == 0 {
		return fmt.Errorf("no delivery channel for report %s", msg.ID)
	}

	var errs []error
	for _, ch := range channels {
		n, ok := d.notifiers[ch]
		if !ok {
			errs = append(errs, fmt.Errorf("channel %s is not configured", ch))
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			d.log.Error().Err(err).Str("channel", ch).Str("id", msg.ID).Msg("delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
