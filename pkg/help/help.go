// Package help prints the console help screen.
package help

import (
	"fmt"
	"io"
	"strings"
)

// ScriptLister names the diagnostic scripts that can be started.
type ScriptLister interface {
	Names() []string
}

// Printer writes the help screen.
type Printer struct {
	scripts ScriptLister
}

// New creates a help printer. scripts may be nil.
func New(scripts ScriptLister) *Printer {
	return &Printer{scripts: scripts}
}

const general = `#### TinyG Help ####
Lines are run as G-code unless they start with one of:
  $           show the system settings
  $$          show every setting
  $x          show one group (sys, x, y, z, a)
  $xvm=1200   change a setting; "$xvm 1200" works too
  ?           status report
  {...}       JSON command, e.g. {"xvm":null} or {"gc":"g0 x10"}
  h           this help screen
Realtime characters, honoured anywhere in the input:
  !           feedhold
  ~           cycle start
  ctrl-x      abort and reset
`

// PrintHelp writes the help screen to w.
func (p *Printer) PrintHelp(w io.Writer) {
	var b strings.Builder
	b.WriteString(general)
	if p.scripts != nil {
		if names := p.scripts.Names(); len(names) > 0 {
			b.WriteString("Diagnostic scripts, started by name:\n")
			for _, n := range names {
				fmt.Fprintf(&b, "  %-11s run script %s\n", strings.ToLower(n), n)
			}
		}
	}
	_, _ = io.WriteString(w, b.String())
}
