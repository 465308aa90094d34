package main

import (
	"bytes"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"tinyg-go/pkg/config"
	"tinyg-go/pkg/controller"
	"tinyg-go/pkg/gcode"
	"tinyg-go/pkg/machine"
	"tinyg-go/pkg/settings"
	"tinyg-go/pkg/status"
)

var (
	jsonConfig  string
	jsonCompact bool
)

var jsonCmd = &cobra.Command{
	Use:   "json <command>...",
	Short: "Run JSON commands against the configured settings",
	Long: `Run each JSON command against a machine built from the configuration, the
way a JSON-mode console would, and print the responses indented. No device
is opened and nothing moves; later commands see the settings earlier ones
changed.`,
	Example: `  tinyg json '{"x":null}'
  tinyg json -c tinyg.cfg '{"xvm":1200}' '{"sr":""}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runJSON,
}

func init() {
	jsonCmd.Flags().StringVarP(&jsonConfig, "config", "c", "", "configuration file (tinyg.cfg)")
	jsonCmd.Flags().BoolVar(&jsonCompact, "compact", false, "print each response on one line")
}

func runJSON(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil, jsonConfig)
	if err != nil {
		return err
	}
	m := machine.New(machine.ConfigFrom(cfg))
	mode := config.ModeJSON
	s := settings.New(m, gcode.New(m), settings.Options{
		Version: controller.Version,
		Build:   controller.Build,
		Mode:    func() string { return mode },
		SetMode: func(name string) status.Code {
			if _, err := controller.ParseMode(name); err != nil {
				return status.NumberRangeError
			}
			mode = name
			return status.OK
		},
		Report: machine.NewReporter(m, machine.ReporterConfig{Interval: cfg.Report.Interval}),
		Output: cmd.OutOrStdout,
	})

	out := cmd.OutOrStdout()
	var buf bytes.Buffer
	for _, line := range args {
		buf.Reset()
		s.ParseJSON(line, &buf)
		resp := buf.Bytes()
		if jsonCompact {
			resp = append(pretty.Ugly(resp), '\n')
		} else {
			resp = pretty.Pretty(resp)
		}
		if _, err := out.Write(resp); err != nil {
			return err
		}
	}
	return nil
}
