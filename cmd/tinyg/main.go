// tinyg is a CNC controller host. It reads G-code, '$' settings and JSON
// commands from a console, a serial port or a websocket and drives a
// simulated machine through the controller's dispatch loop.
//
// Usage:
//
//	tinyg run [-c tinyg.cfg] [flags]
//	tinyg ports
//	tinyg scripts [-c tinyg.cfg]
//	tinyg json [-c tinyg.cfg] '{"x":null}'
//	tinyg version
//
// Examples:
//
//	# Interactive session on this terminal
//	tinyg run
//
//	# Serial console, websocket console and metrics on one port
//	tinyg run --port /dev/ttyUSB0 --listen :8080 --metrics :8080
//
//	# Play the built-in system test and exit when it is done
//	tinyg run --script t < /dev/null
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tinyg-go/pkg/controller"
)

var rootCmd = &cobra.Command{
	Use:   "tinyg",
	Short: "CNC controller host",
	Long: `tinyg runs the controller dispatch loop: it reads command lines from the
active input device, routes them to the G-code, settings or JSON parsers,
applies flow control against the planner and answers in text, JSON or
grbl-compatible form.`,
	SilenceUsage: true,
	Version:      fmt.Sprintf("%0.2f (build %0.2f)", controller.Version, controller.Build),
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(scriptsCmd)
	rootCmd.AddCommand(jsonCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
