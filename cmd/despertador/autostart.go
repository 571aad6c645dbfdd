package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/emersion/go-autostart"
	"github.com/spf13/cobra"
)

var autostartCmd = &cobra.Command{
	Use:       "autostart [on|off]",
	Short:     "Start the daemon with the user session",
	Long:      `Register or unregister "despertador run" to start at login. Without argument, print the current state.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := autostartApp()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			state := "off"
			if app.IsEnabled() {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Autostart is %s.\n", state)
			return nil
		}
		if args[0] != "on" && args[0] != "off" {
			return fmt.Errorf("unknown autostart state %q, want on or off", args[0])
		}
		return setAutostart(app, args[0] == "on")
	},
}

func init() {
	rootCmd.AddCommand(autostartCmd)
}

func autostartApp() (*autostart.App, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}

	exec := []string{execPath}
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, err
		}
		exec = append(exec, "--config", abs)
	}
	exec = append(exec, "run")

	return &autostart.App{
		Name:        "despertador",
		DisplayName: "Despertador",
		Exec:        exec,
	}, nil
}

func setAutostart(app *autostart.App, enable bool) error {
	switch {
	case enable && !app.IsEnabled():
		if err := app.Enable(); err != nil {
			return fmt.Errorf("enable autostart: %w", err)
		}
	case !enable && app.IsEnabled():
		if err := app.Disable(); err != nil {
			return fmt.Errorf("disable autostart: %w", err)
		}
	}
	return nil
}
