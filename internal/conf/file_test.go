//go:build linux

package conf

import (
	"errors"
	"strings"
	"testing"
)

func dmonOptionInfo(name string) (needsArg, known bool) {
	switch name {
	case "no-daemon", "stderr-redir", "cmd-sigs", "log-sigs", "once":
		return false, true
	case "max-respawns", "write-info", "pid-file", "work-dir", "load-high",
		"load-low", "timeout", "interval", "environ", "limit", "cmd-user", "log-user":
		return true, true
	}
	return false, false
}

func parseString(t *testing.T, input string) []Entry {
	t.Helper()
	entries, err := ParseFile(strings.NewReader(input), dmonOptionInfo)
	if err != nil {
		t.Fatalf("ParseFile(%q): %v", input, err)
	}
	return entries
}

func TestParseFileBasic(t *testing.T) {
	entries := parseString(t, "no-daemon\ntimeout 30\nwrite-info /tmp/status\n")

	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(entries), entries)
	}
	if entries[0].Name != "no-daemon" || entries[0].HasValue {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Name != "timeout" || entries[1].Value != "30" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if entries[2].Value != "/tmp/status" {
		t.Errorf("entry 2 = %+v", entries[2])
	}
}

func TestParseFileComments(t *testing.T) {
	entries := parseString(t, `
# leading comment
timeout 30   # trailing comment
# another
interval 5
`)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].Value != "30" || entries[1].Value != "5" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestParseFileQuotedStrings(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "work-dir \"/var/lib/some dir\"\n", "/var/lib/some dir"},
		{"tab escape", "work-dir \"a\\tb\"\n", "a\tb"},
		{"newline escape", "work-dir \"a\\nb\"\n", "a\nb"},
		{"escape char", "work-dir \"a\\eb\"\n", "a\x1bb"},
		{"hex escape", "work-dir \"a\\x41b\"\n", "aAb"},
		{"hash inside string", "work-dir \"not # a comment\"\n", "not # a comment"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			entries := parseString(t, c.input)
			if len(entries) != 1 || entries[0].Value != c.want {
				t.Errorf("entries = %+v, want value %q", entries, c.want)
			}
		})
	}
}

func TestParseFileErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		msg   string
	}{
		{"unknown option", "frobnicate 1\n", "No such option frobnicate"},
		{"missing argument", "timeout", "Expected argument for option timeout"},
		{"unterminated string", "work-dir \"half open\n", "Unterminated string"},
		{"bad hex", "work-dir \"a\\xZZ\"\n", "Invalid hex sequence"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseFile(strings.NewReader(c.input), dmonOptionInfo)
			if err == nil {
				t.Fatalf("ParseFile(%q) succeeded, want error", c.input)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %v is not a ParseError", err)
			}
			if !strings.Contains(pe.Msg, c.msg) {
				t.Errorf("error %q does not contain %q", pe.Msg, c.msg)
			}
			if !strings.Contains(pe.Error(), ":") {
				t.Errorf("error %q carries no line:col position", pe.Error())
			}
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := ParseFile(strings.NewReader("timeout 30\nbogus 1\n"), dmonOptionInfo)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a ParseError", err)
	}
	if pe.Line != 2 {
		t.Errorf("error line = %d, want 2 (%v)", pe.Line, pe)
	}
}
