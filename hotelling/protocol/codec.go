// Package protocol encodes and decodes the slash-delimited wire format.
//
// A request is "<command>/<arg>/<arg>/...". Each argument is
// percent-encoded, so string arguments may carry '/' safely. A decoded
// segment matching ^-?[0-9]+$ is an integer; anything else is a string.
package protocol

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"hotelling/hotelling/apperr"
)

type Command string

const (
	CmdInit                Command = "ask_init"
	CmdFirmChoice          Command = "ask_firm_choice_recording"
	CmdCustomerChoice      Command = "ask_customer_choice_recording"
	CmdFirmClientCount     Command = "ask_firm_n_clients"
	CmdAdminInit           Command = "ask_admin_init"
	CmdFirmOpponentChoice  Command = "ask_firm_opponent_choice"
	CmdCustomerFirmChoices Command = "ask_customer_firm_choices"
)

var known = map[Command]bool{
	CmdInit:                true,
	CmdFirmChoice:          true,
	CmdCustomerChoice:      true,
	CmdFirmClientCount:     true,
	CmdAdminInit:           true,
	CmdFirmOpponentChoice:  true,
	CmdCustomerFirmChoices: true,
}

// Known reports whether c is in the command whitelist.
func Known(c Command) bool { return known[c] }

// ReplyName is the command name with its "ask" prefix replaced by "reply".
func (c Command) ReplyName() string {
	return strings.Replace(string(c), "ask", "reply", 1)
}

var intPattern = regexp.MustCompile(`^-?[0-9]+$`)

// Arg is one decoded argument.
type Arg struct {
	Raw   string
	Int   int
	IsInt bool
}

type Request struct {
	Command Command
	Args    []Arg
}

// Parse decodes a raw request. Unknown command names are rejected here,
// before any handler is looked up.
func Parse(raw string) (Request, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" {
		return Request{}, apperr.New(apperr.CodeUnknownCommand, "empty request")
	}

	parts := strings.Split(raw, "/")
	cmd := Command(parts[0])
	if !Known(cmd) {
		return Request{}, apperr.New(apperr.CodeUnknownCommand, "unknown command %q", truncate(parts[0], 64))
	}

	req := Request{Command: cmd, Args: make([]Arg, 0, len(parts)-1)}
	for i, p := range parts[1:] {
		s, err := url.PathUnescape(p)
		if err != nil {
			return Request{}, apperr.Wrap(apperr.CodeInvalidArgument, "argument "+strconv.Itoa(i)+" is not valid percent-encoding", err)
		}
		a := Arg{Raw: s}
		if intPattern.MatchString(s) {
			n, err := strconv.Atoi(s)
			if err != nil {
				return Request{}, apperr.Wrap(apperr.CodeInvalidArgument, "argument "+strconv.Itoa(i)+" out of range", err)
			}
			a.Int, a.IsInt = n, true
		}
		req.Args = append(req.Args, a)
	}
	return req, nil
}

// Encode builds a request string. Used by bots and tests.
func Encode(c Command, args ...interface{}) string {
	return strings.Join(append([]string{string(c)}, encodeArgs(args)...), "/")
}

// FormatReply builds "reply/<reply name>/<args...>".
func FormatReply(c Command, args ...interface{}) string {
	return strings.Join(append([]string{"reply", c.ReplyName()}, encodeArgs(args)...), "/")
}

const diagnosticPrefix = "Command not understood: "

// FormatError builds the diagnostic reply. The code comes first so
// clients can tell a resync instruction from a hard failure.
func FormatError(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return diagnosticPrefix + string(e.Code) + ": " + e.Message
	}
	return diagnosticPrefix + string(apperr.CodeUnknown) + ": " + err.Error()
}

// IsDiagnostic reports whether a reply is an error diagnostic.
func IsDiagnostic(reply string) bool {
	return strings.HasPrefix(reply, diagnosticPrefix)
}

func encodeArgs(args []interface{}) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case int:
			out = append(out, strconv.Itoa(v))
		case bool:
			if v {
				out = append(out, "1")
			} else {
				out = append(out, "0")
			}
		case string:
			out = append(out, url.PathEscape(v))
		case interface{ String() string }:
			out = append(out, url.PathEscape(v.String()))
		default:
			out = append(out, "?")
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
