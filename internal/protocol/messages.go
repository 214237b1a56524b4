// Package protocol defines the messages exchanged between the reporter, the
// notification service and the inbound SMS webhook.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// CommandPrefix starts every inbound SMS command.
const CommandPrefix = "###"

// CommandType is the verb of an inbound command.
type CommandType string

const (
	CmdConfig CommandType = "config"
	CmdReport CommandType = "report"
)

// ErrNotCommand is returned for SMS text without the command prefix.
var ErrNotCommand = errors.New("not a command")

// Command is a parsed inbound SMS, e.g.
//
//	### config: thresholds.rain_amount: 0.5
//	### report: evening
type Command struct {
	Type  CommandType
	Key   string
	Value string
	Mode  string
	Raw   string
}

var reportModes = map[string]bool{"morning": true, "evening": true, "dynamic": true}

// ParseCommand parses one SMS body.
func ParseCommand(text string) (*Command, error) {
	raw := strings.TrimSpace(text)
	rest, ok := strings.CutPrefix(raw, CommandPrefix)
	if !ok {
		return nil, ErrNotCommand
	}

	verb, args, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("invalid command %q: missing ':'", raw)
	}
	cmd := &Command{Type: CommandType(strings.ToLower(strings.TrimSpace(verb))), Raw: raw}
	args = strings.TrimSpace(args)

	switch cmd.Type {
	case CmdConfig:
		key, value, ok := strings.Cut(args, ":")
		if !ok {
			return nil, fmt.Errorf("invalid config command %q: expected key: value", raw)
		}
		cmd.Key = strings.ToLower(strings.TrimSpace(key))
		cmd.Value = strings.TrimSpace(value)
		if cmd.Key == "" || cmd.Value == "" {
			return nil, fmt.Errorf("invalid config command %q: empty key or value", raw)
		}
		if !AllowedConfigKey(cmd.Key) {
			return nil, fmt.Errorf("config key %s cannot be changed by SMS", cmd.Key)
		}
	case CmdReport:
		cmd.Mode = strings.ToLower(args)
		if !reportModes[cmd.Mode] {
			return nil, fmt.Errorf("unknown report mode %q", args)
		}
	default:
		return nil, fmt.Errorf("unknown command %q", verb)
	}
	return cmd, nil
}

// AllowedConfigKey reports whether key may be rewritten remotely.
func AllowedConfigKey(key string) bool {
	switch {
	case key == "startdatum", key == "delivery.channels":
		return true
	case strings.HasPrefix(key, "thresholds.") && len(key) > len("thresholds."):
		return true
	default:
		return false
	}
}

// AckText is the SMS reply to a command.
func AckText(cmd *Command, err error) string {
	if err != nil {
		return "Fehler: " + err.Error()
	}
	switch cmd.Type {
	case CmdConfig:
		return fmt.Sprintf("OK: %s = %s", cmd.Key, cmd.Value)
	case CmdReport:
		return fmt.Sprintf("OK: %s report started", cmd.Mode)
	default:
		return "OK"
	}
}
