//go:build linux

// denv builds an environment array from scratch and executes a command
// with it. Options are applied in the order given. When invoked as
// "envdir", it behaves like the daemontools tool of that name.
//
// Usage: denv [options] command [command-options...]
package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/aperezdc/dmon/internal/conf"
	"github.com/aperezdc/dmon/internal/envtool"
	"github.com/aperezdc/dmon/internal/logging"
)

// actionFlag applies an option as soon as it is parsed, preserving the
// order in which mutations were given on the command line.
type actionFlag struct {
	typ   string
	apply func(string) error
}

func (f *actionFlag) Set(s string) error { return f.apply(s) }
func (f *actionFlag) String() string     { return "" }
func (f *actionFlag) Type() string       { return f.typ }

func main() {
	log := logging.New("denv")
	defer log.Sync()

	env := envtool.New(log)

	if filepath.Base(os.Args[0]) == "envdir" {
		runEnvdir(log, env)
		return
	}

	fs := pflag.NewFlagSet("denv", pflag.ContinueOnError)
	fs.SetInterspersed(false)

	inheritEnv := &actionFlag{typ: "", apply: func(string) error {
		env.InheritAll()
		return nil
	}}
	fs.VarP(inheritEnv, "inherit-env", "I",
		"Inherit all environment variables of the calling process.")
	fs.Lookup("inherit-env").NoOptDefVal = "true"

	fs.VarP(&actionFlag{typ: "var", apply: func(s string) error {
		env.Inherit(s)
		return nil
	}}, "inherit", "i", "Inherit an environment variable of the calling process.")

	fs.VarP(&actionFlag{typ: "var[=value]", apply: func(s string) error {
		env.Set(s)
		return nil
	}}, "environ", "E",
		"Define an environment variable, or if no value is given, delete it. This option can be specified multiple times.")

	fs.VarP(&actionFlag{typ: "dir", apply: env.LoadDir}, "envdir", "d",
		"Add environment variables from the contents of files in a directory.")

	fs.VarP(&actionFlag{typ: "file", apply: env.LoadFile}, "file", "f",
		"Add environment variables from a file in the environment.d(5) format. Note: $VARIABLE expansions are not supported.")

	args := os.Args[1:]
	if envopts := os.Getenv("DENV_OPTIONS"); envopts != "" {
		tokens, err := conf.SplitTokens(envopts)
		if err != nil {
			log.Fatal("DENV_OPTIONS", zap.Error(err))
		}
		args = append(tokens, args...)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal("invalid options", zap.Error(err))
	}

	if fs.NArg() == 0 {
		log.Fatal("no command specified")
	}

	if err := env.Exec(fs.Args()); err != nil {
		log.Fatal("denv", zap.Error(err))
	}
}

// runEnvdir implements the envdir compatibility entry point:
// "envdir DIR command [args...]".
func runEnvdir(log *zap.Logger, env *envtool.Env) {
	if len(os.Args) < 3 {
		log.Fatal("usage: envdir dir command [args...]")
	}

	env.InheritAll()
	if err := env.LoadDir(os.Args[1]); err != nil {
		log.Fatal("envdir", zap.Error(err))
	}

	if err := env.Exec(os.Args[2:]); err != nil {
		log.Fatal("envdir", zap.Error(err))
	}
}
