//go:build linux

// Package conf assembles the effective dmon configuration from three
// sources: an optional configuration file (-C as the very first
// option), the DMON_OPTIONS environment variable, and the command
// line. File and environment contributions are applied before the
// command line, so command-line flags win on conflicts; positional
// arguments always come from the command line.
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/aperezdc/dmon/internal/ident"
	"github.com/aperezdc/dmon/internal/rlimit"
	"github.com/aperezdc/dmon/internal/units"
)

// almostZero mirrors the float comparison used for the load
// thresholds: anything below it counts as unset.
const almostZero = 1e-9

// Options is the composed supervisor configuration.
type Options struct {
	NoDaemon    bool
	StderrRedir bool
	CmdSignals  bool
	LogSignals  bool
	Once        bool
	MaxRespawns int
	StatusPath  string
	PidfilePath string
	WorkDir     string
	LoadHigh    float64
	LoadLow     float64
	Timeout     uint64
	Interval    uint64
	CmdUser     *ident.Credentials
	LogUser     *ident.Credentials

	CmdArgv []string
	LogArgv []string

	configPath string
}

// LoadEnabled reports whether load checking was requested.
func (o *Options) LoadEnabled() bool { return o.LoadHigh > almostZero }

// LogEnabled reports whether a log command was given.
func (o *Options) LogEnabled() bool { return len(o.LogArgv) > 0 }

func (o *Options) flagSet(log *zap.Logger) *pflag.FlagSet {
	fs := pflag.NewFlagSet("dmon", pflag.ContinueOnError)
	fs.SetInterspersed(false)

	fs.StringVarP(&o.configPath, "config", "C", "",
		"Read options from the specified configuration file. If given, this option must be the first one in the command line.")
	fs.BoolVarP(&o.NoDaemon, "no-daemon", "n", false,
		"Do not daemonize, stay in foreground.")
	fs.BoolVarP(&o.StderrRedir, "stderr-redir", "e", false,
		"Redirect command's standard error stream to its standard output stream.")
	fs.BoolVarP(&o.CmdSignals, "cmd-sigs", "s", false,
		"Forward signals to command process.")
	fs.BoolVarP(&o.LogSignals, "log-sigs", "S", false,
		"Forward signals to log process.")
	fs.BoolVarP(&o.Once, "once", "1", false,
		"Exit if command exits with a zero return code. The process will be still respawned when it exits with a non-zero code.")
	fs.IntVarP(&o.MaxRespawns, "max-respawns", "m", -1,
		"Exit after max number of respawns no matter the exit code.")
	fs.StringVarP(&o.StatusPath, "write-info", "I", "",
		"Write information on process status to the given file. Sockets and FIFOs may be used.")
	fs.StringVarP(&o.PidfilePath, "pid-file", "p", "",
		"Write PID to a file in the given path.")
	fs.StringVarP(&o.WorkDir, "work-dir", "W", "",
		"Specify a working directory. All other specified relative paths have to be specified in relation with this directory.")
	fs.Float64VarP(&o.LoadHigh, "load-high", "L", 0,
		"Stop process when system load surpasses the given value.")
	fs.Float64VarP(&o.LoadLow, "load-low", "l", 0,
		"Resume process execution when system load drops below the given value. If not given, defaults to half the value passed to '-L'.")
	fs.VarP(&periodValue{&o.Timeout}, "timeout", "t",
		"If command execution takes longer than the time specified the process will be killed and started again.")
	fs.VarP(&periodValue{&o.Interval}, "interval", "i",
		"Time to wait between successful command executions. When exit code is non-zero, the interval is ignored and the command is executed again as soon as possible.")
	fs.VarP(environValue{}, "environ", "E",
		"Define an environment variable, or if no value is given, delete it. This option can be specified multiple times.")
	fs.VarP(limitValue{}, "limit", "r",
		"Sets a resource limit, given as 'name=value'. This option can be specified multiple times. Use '-r help' for a list.")
	fs.VarP(&identValue{dst: &o.CmdUser, log: log}, "cmd-user", "u",
		"User and (optionally) groups to run the command as. Format is 'user[:group1[:group2[:...groupN]]]'.")
	fs.VarP(&identValue{dst: &o.LogUser, log: log}, "log-user", "U",
		"User and (optionally) groups to run the log process as. Format is 'user[:group1[:group2[:...groupN]]]'.")

	return fs
}

// Parse composes the configuration from argv (including argv[0]), the
// DMON_OPTIONS environment variable, and an optional leading
// "-C path".
func Parse(log *zap.Logger, argv []string) (*Options, error) {
	o := &Options{}
	fs := o.flagSet(log)

	args := argv[1:]

	// The configuration file, when given, must come first; its entries
	// are applied before anything else so that later sources override.
	if len(args) >= 2 && (args[0] == "-C" || args[0] == "--config") {
		if err := o.applyFile(fs, args[1]); err != nil {
			return nil, err
		}
		args = args[2:]
	}

	if env := os.Getenv("DMON_OPTIONS"); env != "" {
		tokens, err := SplitTokens(env)
		if err != nil {
			return nil, fmt.Errorf("DMON_OPTIONS: %w", err)
		}
		args = append(tokens, args...)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.Changed("config") {
		return nil, fmt.Errorf("option --config/-C must be the first one specified")
	}
	if o.Interval > 0 && o.Once {
		return nil, fmt.Errorf("options '-i' and '-1' cannot be used together")
	}

	o.CmdArgv, o.LogArgv = splitArgv(fs.Args())
	if len(o.CmdArgv) == 0 {
		return nil, fmt.Errorf("no command to run given")
	}

	if o.LoadEnabled() && o.LoadLow < almostZero {
		o.LoadLow = o.LoadHigh / 2
	}

	return o, nil
}

func (o *Options) applyFile(fs *pflag.FlagSet, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open file %q: %w", path, err)
	}
	defer f.Close()

	entries, err := ParseFile(f, func(name string) (needsArg, known bool) {
		if name == "config" {
			return false, false
		}
		flag := fs.Lookup(name)
		if flag == nil {
			return false, false
		}
		return flag.Value.Type() != "bool", true
	})
	if err != nil {
		return fmt.Errorf("error parsing %s:%w", path, err)
	}

	for _, e := range entries {
		value := e.Value
		if !e.HasValue {
			value = "true"
		}
		if err := fs.Set(e.Name, value); err != nil {
			return fmt.Errorf("error parsing %s:%d:%d Argument '%s' for option %s is invalid",
				path, e.Line, e.Col, e.Value, e.Name)
		}
	}
	return nil
}

// splitArgv separates the positional arguments into the command argv
// and, after a "--" separator, the log argv.
func splitArgv(args []string) (cmd, logv []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

// periodValue parses time periods with the w/d/h/m suffixes.
type periodValue struct{ dst *uint64 }

func (v *periodValue) Set(s string) error {
	n, err := units.ParsePeriod(s)
	if err != nil {
		return err
	}
	*v.dst = n
	return nil
}

func (v *periodValue) String() string { return strconv.FormatUint(*v.dst, 10) }
func (v *periodValue) Type() string   { return "period" }

// environValue applies -E VAR[=VALUE] mutations to the supervisor
// environment as they are parsed; children inherit the result.
type environValue struct{}

func (environValue) Set(s string) error {
	if name, value, found := strings.Cut(s, "="); found {
		return os.Setenv(name, value)
	}
	return os.Unsetenv(s)
}

func (environValue) String() string { return "" }
func (environValue) Type() string   { return "env" }

// limitValue parses and immediately applies -r name=value resource
// limits to the supervisor process. The special argument "help" prints
// the table of known limits and exits cleanly.
type limitValue struct{}

func (limitValue) Set(s string) error {
	resource, value, err := rlimit.Parse(s)
	if err == rlimit.ErrHelp {
		fmt.Print(rlimit.Help())
		os.Exit(0)
	}
	if err != nil {
		return err
	}
	return rlimit.Apply(resource, value)
}

func (limitValue) String() string { return "" }
func (limitValue) Type() string   { return "limit" }

// identValue parses -u/-U user[:gid...] specifications.
type identValue struct {
	dst **ident.Credentials
	log *zap.Logger
}

func (v *identValue) Set(s string) error {
	creds, err := ident.Parse(v.log, s)
	if err != nil {
		return err
	}
	*v.dst = creds
	return nil
}

func (v *identValue) String() string { return "" }
func (v *identValue) Type() string   { return "user[:group...]" }
