package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kartta/internal/discovery"
	"github.com/yairfalse/kartta/internal/filter"
	"github.com/yairfalse/kartta/internal/plugin/aws"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List discovery modules",
	Long: `List every discovery module with its region scope and whether the
current configuration enables it.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := filter.New(cfg.AWS.Services, cfg.AWS.ExcludeServices, cfg.AWS.ExcludeTypes)
		return printServices(cmd.OutOrStdout(), aws.Modules(), f)
	},
}

func init() {
	rootCmd.AddCommand(servicesCmd)
}

func printServices(w io.Writer, modules []discovery.Module, services discovery.ServiceFilter) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tREGIONS\tENABLED")
	for _, m := range modules {
		regions := "all"
		if r := m.Regions(); r != nil {
			regions = strings.Join(r, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\n", m.Service(), regions, services == nil || services.Enabled(m.Service()))
	}
	return tw.Flush()
}
