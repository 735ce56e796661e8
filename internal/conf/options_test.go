//go:build linux

package conf

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func parseArgs(t *testing.T, args ...string) (*Options, error) {
	t.Helper()
	return Parse(zap.NewNop(), append([]string{"dmon"}, args...))
}

func mustParse(t *testing.T, args ...string) *Options {
	t.Helper()
	o, err := parseArgs(t, args...)
	if err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return o
}

func TestParseBasicFlags(t *testing.T) {
	o := mustParse(t, "-n", "-e", "-s", "-1", "-m", "3", "-t", "2m",
		"-I", "/tmp/st", "sh", "-c", "exit 1")

	if !o.NoDaemon || !o.StderrRedir || !o.CmdSignals || !o.Once {
		t.Errorf("boolean flags not set: %+v", o)
	}
	if o.MaxRespawns != 3 {
		t.Errorf("MaxRespawns = %d, want 3", o.MaxRespawns)
	}
	if o.Timeout != 120 {
		t.Errorf("Timeout = %d, want 120", o.Timeout)
	}
	if o.StatusPath != "/tmp/st" {
		t.Errorf("StatusPath = %q", o.StatusPath)
	}
	if !reflect.DeepEqual(o.CmdArgv, []string{"sh", "-c", "exit 1"}) {
		t.Errorf("CmdArgv = %#v", o.CmdArgv)
	}
	if o.LogEnabled() {
		t.Errorf("unexpected log argv: %#v", o.LogArgv)
	}
}

func TestParseFlagsStopAtCommand(t *testing.T) {
	// Flags after the command belong to the command, not to dmon.
	o := mustParse(t, "-n", "mydaemon", "-t", "whatever")
	if o.Timeout != 0 {
		t.Errorf("Timeout = %d, command flags leaked into dmon", o.Timeout)
	}
	if !reflect.DeepEqual(o.CmdArgv, []string{"mydaemon", "-t", "whatever"}) {
		t.Errorf("CmdArgv = %#v", o.CmdArgv)
	}
}

func TestParseLogArgv(t *testing.T) {
	o := mustParse(t, "-n", "server", "--port", "80", "--", "dlog", "-t", "/var/log/server")
	if !reflect.DeepEqual(o.CmdArgv, []string{"server", "--port", "80"}) {
		t.Errorf("CmdArgv = %#v", o.CmdArgv)
	}
	if !reflect.DeepEqual(o.LogArgv, []string{"dlog", "-t", "/var/log/server"}) {
		t.Errorf("LogArgv = %#v", o.LogArgv)
	}
}

func TestParseRejectsIntervalWithOnce(t *testing.T) {
	if _, err := parseArgs(t, "-n", "-1", "-i", "5", "true"); err == nil {
		t.Error("interval together with once accepted")
	}
}

func TestParseRequiresCommand(t *testing.T) {
	if _, err := parseArgs(t, "-n"); err == nil {
		t.Error("missing command accepted")
	}
}

func TestParseLoadLowDefault(t *testing.T) {
	o := mustParse(t, "-n", "-L", "8", "true")
	if o.LoadLow != 4 {
		t.Errorf("LoadLow = %v, want half of load-high", o.LoadLow)
	}

	o = mustParse(t, "-n", "-L", "8", "-l", "1.5", "true")
	if o.LoadLow != 1.5 {
		t.Errorf("LoadLow = %v, want explicit 1.5", o.LoadLow)
	}
}

func TestParseEnvironMutations(t *testing.T) {
	t.Setenv("DMON_TEST_VAR", "before")

	mustParse(t, "-E", "DMON_TEST_VAR=after", "-E", "DMON_TEST_NEW=1", "true")
	if got := os.Getenv("DMON_TEST_VAR"); got != "after" {
		t.Errorf("DMON_TEST_VAR = %q, want %q", got, "after")
	}
	if got := os.Getenv("DMON_TEST_NEW"); got != "1" {
		t.Errorf("DMON_TEST_NEW = %q, want %q", got, "1")
	}

	mustParse(t, "-E", "DMON_TEST_NEW", "true")
	if _, ok := os.LookupEnv("DMON_TEST_NEW"); ok {
		t.Error("DMON_TEST_NEW still set after unset")
	}
}

func TestParseOptionsFromEnvironment(t *testing.T) {
	t.Setenv("DMON_OPTIONS", "-n -t 30")

	o := mustParse(t, "sleep", "10")
	if !o.NoDaemon || o.Timeout != 30 {
		t.Errorf("DMON_OPTIONS not applied: %+v", o)
	}
}

func TestParseCommandLineOverridesEnvironment(t *testing.T) {
	t.Setenv("DMON_OPTIONS", "-t 30")

	o := mustParse(t, "-t", "60", "sleep", "10")
	if o.Timeout != 60 {
		t.Errorf("Timeout = %d, want command line to win", o.Timeout)
	}
}

func TestParseConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dmon.conf")
	content := "# test configuration\nno-daemon\ntimeout 1m\nwrite-info \"/tmp/st file\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	o := mustParse(t, "-C", path, "sleep", "10")
	if !o.NoDaemon || o.Timeout != 60 || o.StatusPath != "/tmp/st file" {
		t.Errorf("config file not applied: %+v", o)
	}
}

func TestParseCommandLineOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dmon.conf")
	if err := os.WriteFile(path, []byte("timeout 30\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	o := mustParse(t, "--config", path, "-t", "90", "sleep", "10")
	if o.Timeout != 90 {
		t.Errorf("Timeout = %d, want command line to win over file", o.Timeout)
	}
}

func TestParseConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.conf")
	if err := os.WriteFile(bad, []byte("zorp 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := parseArgs(t, "-C", bad, "true"); err == nil {
		t.Error("unknown config entry accepted")
	}

	if _, err := parseArgs(t, "-C", filepath.Join(dir, "missing.conf"), "true"); err == nil {
		t.Error("unreadable config file accepted")
	}
}

func TestParseConfigNotFirstRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dmon.conf")
	if err := os.WriteFile(path, []byte("no-daemon\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := parseArgs(t, "-n", "-C", path, "true"); err == nil {
		t.Error("--config accepted in non-first position")
	}
}

func TestParseUnknownFlag(t *testing.T) {
	if _, err := parseArgs(t, "--frobnicate", "true"); err == nil {
		t.Error("unknown flag accepted")
	}
}
