package main

import (
	"os"
	"time"

	"bsid.es/despertador/calendar"
	"bsid.es/despertador/config"
	"bsid.es/despertador/sqlite"
	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export enabled alarms as an iCalendar file",
	Example: `  despertador export > alarms.ics
  despertador export -o ~/calendars/alarms.ics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(cfg *config.Config, store *sqlite.Store) error {
			alarms, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if exportOutput == "" || exportOutput == "-" {
				return calendar.Export(cmd.OutOrStdout(), alarms, time.Now())
			}

			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			if err := calendar.Export(f, alarms, time.Now()); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of standard output")
	rootCmd.AddCommand(exportCmd)
}
