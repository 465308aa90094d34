package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tinyg-go/pkg/diag"
)

var (
	scriptsConfig string
	scriptsLines  bool
)

var scriptsCmd = &cobra.Command{
	Use:   "scripts [name]",
	Short: "List diagnostic scripts",
	Long: `List the diagnostic scripts a console can start by typing their name: the
built-in ones plus any from the [scripts] file in the configuration. With a
name, print that script's lines.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScripts,
}

func init() {
	scriptsCmd.Flags().StringVarP(&scriptsConfig, "config", "c", "", "configuration file (tinyg.cfg)")
	scriptsCmd.Flags().BoolVarP(&scriptsLines, "lines", "l", false, "print every script's lines")
}

func runScripts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil, scriptsConfig)
	if err != nil {
		return err
	}
	catalog, err := diag.Load(cfg.Scripts.File)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	names := catalog.Names()
	if len(args) == 1 {
		s, ok := catalog.Get(args[0])
		if !ok {
			return fmt.Errorf("no script named %q", args[0])
		}
		names = []string{s.Name}
		scriptsLines = true
	}
	for _, name := range names {
		s, _ := catalog.Get(name)
		fmt.Fprintf(out, "%-4s %s\n", strings.ToLower(s.Name), s.Description)
		if scriptsLines {
			for _, line := range s.Lines {
				fmt.Fprintf(out, "       %s\n", line)
			}
		}
	}
	return nil
}
