package rotlog

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aperezdc/dmon/internal/lineio"
)

// Run copies lines from the input descriptor into the rotating log
// directory until end of input. SIGHUP flushes and closes the current
// file; SIGINT and SIGTERM flush and stop.
func Run(log *zap.Logger, opts Options, dir string) error {
	w := NewWriter(log, opts, dir)
	defer w.Close()

	in := os.NewFile(uintptr(opts.InputFD), "input")
	lines, errc := lineio.Lines(in)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				w.Close()
				continue
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := w.WriteLine(line, time.Now()); err != nil {
				return err
			}
		case err := <-errc:
			return fmt.Errorf("unable to read input: %w", err)
		}
	}
}
