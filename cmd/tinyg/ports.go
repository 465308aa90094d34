package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tinyg-go/pkg/xio"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ports, err := xio.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
			return nil
		}
		return printPorts(cmd, ports)
	},
}

func printPorts(cmd *cobra.Command, ports []xio.PortInfo) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tUSB\tVID:PID\tSERIAL\tPRODUCT")
	for _, p := range ports {
		usb, ids := "no", "-"
		if p.IsUSB {
			usb, ids = "yes", p.VID+":"+p.PID
		}
		serial := p.SerialNumber
		if serial == "" {
			serial = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, usb, ids, serial, p.Product)
	}
	return w.Flush()
}
