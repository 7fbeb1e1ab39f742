package ragtime

import (
	"io"
)

// printer writes console output one line per call.
type printer struct {
	stdout io.Writer
	stderr io.Writer
}

func (p printer) Log(s string)   { writeLine(p.stdout, s) }
func (p printer) Warn(s string)  { writeLine(p.stderr, s) }
func (p printer) Error(s string) { writeLine(p.stderr, s) }

func writeLine(w io.Writer, s string) {
	_, _ = io.WriteString(w, s+"\n")
}
