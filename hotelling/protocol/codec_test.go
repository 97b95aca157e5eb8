package protocol

import (
	"errors"
	"strings"
	"testing"

	"hotelling/hotelling/apperr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		cmd     Command
		args    []Arg
		errCode apperr.Code
	}{
		{
			name: "firm choice",
			raw:  "ask_firm_choice_recording/0/3/4/5",
			cmd:  CmdFirmChoice,
			args: []Arg{{"0", 0, true}, {"3", 3, true}, {"4", 4, true}, {"5", 5, true}},
		},
		{
			name: "http path with negative index",
			raw:  "/ask_customer_choice_recording/2/0/1/-1\n",
			cmd:  CmdCustomerChoice,
			args: []Arg{{"2", 2, true}, {"0", 0, true}, {"1", 1, true}, {"-1", -1, true}},
		},
		{
			name: "escaped slash stays a string",
			raw:  "ask_init/a%2Fb/firm",
			cmd:  CmdInit,
			args: []Arg{{Raw: "a/b"}, {Raw: "firm"}},
		},
		{
			name: "digits with sign in middle are strings",
			raw:  "ask_init/1-2",
			cmd:  CmdInit,
			args: []Arg{{Raw: "1-2"}},
		},
		{name: "unknown command", raw: "__import__/os", errCode: apperr.CodeUnknownCommand},
		{name: "empty", raw: "   ", errCode: apperr.CodeUnknownCommand},
		{name: "bad escape", raw: "ask_init/%zz", errCode: apperr.CodeInvalidArgument},
		{name: "overflow", raw: "ask_firm_n_clients/0/99999999999999999999999", errCode: apperr.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Parse(tt.raw)
			if tt.errCode != "" {
				if !apperr.IsCode(err, tt.errCode) {
					t.Fatalf("Parse() error = %v, want %s", err, tt.errCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if req.Command != tt.cmd {
				t.Fatalf("Command = %q, want %q", req.Command, tt.cmd)
			}
			if len(req.Args) != len(tt.args) {
				t.Fatalf("Args = %+v, want %+v", req.Args, tt.args)
			}
			for i := range tt.args {
				if req.Args[i] != tt.args[i] {
					t.Fatalf("Args[%d] = %+v, want %+v", i, req.Args[i], tt.args[i])
				}
			}
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	raw := Encode(CmdInit, "team/alpha 1", "customer")
	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", raw, err)
	}
	if req.Args[0].Raw != "team/alpha 1" || req.Args[0].IsInt {
		t.Fatalf("arg 0 = %+v", req.Args[0])
	}
}

func TestFormatReply(t *testing.T) {
	got := FormatReply(CmdFirmClientCount, 3, 2, 10)
	if got != "reply/reply_firm_n_clients/3/2/10" {
		t.Fatalf("FormatReply() = %q", got)
	}
	if got := FormatReply(CmdAdminInit, 0, true); got != "reply/reply_admin_init/0/1" {
		t.Fatalf("FormatReply() = %q", got)
	}
}

func TestFormatError(t *testing.T) {
	got := FormatError(apperr.New(apperr.CodeStaleTurn, "client turn 5, server turn 4"))
	if got != "Command not understood: StaleTurn: client turn 5, server turn 4" {
		t.Fatalf("FormatError() = %q", got)
	}
	if !IsDiagnostic(got) {
		t.Fatalf("IsDiagnostic() = false")
	}
	if strings.HasPrefix(got, "reply/") {
		t.Fatalf("diagnostic matches reply grammar")
	}
	if got := FormatError(errors.New("boom")); got != "Command not understood: Unknown: boom" {
		t.Fatalf("FormatError(plain) = %q", got)
	}
}
