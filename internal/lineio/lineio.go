// Package lineio feeds line-oriented input into channels, so the
// log tools can react to signals while a read is in flight.
package lineio

import (
	"bufio"
	"io"
	"strings"
)

// Lines reads r line by line, sending each line with its delimiter
// stripped. The line channel closes at end of input; a read failure is
// reported on the error channel instead.
func Lines(r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				lines <- strings.TrimSuffix(line, "\n")
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()

	return lines, errc
}
