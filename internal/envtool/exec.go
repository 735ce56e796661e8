//go:build linux

package envtool

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Exec replaces the current process with the command, resolved through
// PATH, running under the built environment. It only returns on error.
func (e *Env) Exec(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no command specified")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("cannot execute %q: %w", argv[0], err)
	}
	if err := unix.Exec(path, argv, e.entries); err != nil {
		return fmt.Errorf("cannot execute %q: %w", argv[0], err)
	}
	return nil
}
