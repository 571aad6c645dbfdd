package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"bsid.es/despertador"
	"bsid.es/despertador/config"
	"bsid.es/despertador/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type alarmOptions struct {
	id        string
	repeat    string
	label     string
	icon      string
	snooze    bool
	wakeCheck bool
	disabled  bool
}

func (o *alarmOptions) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.id, "id", "", "Alarm ID (default: generated)")
	fs.StringVarP(&o.repeat, "repeat", "r", "once", `Recurrence: once, daily, weekdays, weekends or days such as "mon,wed,fri"`)
	fs.StringVarP(&o.label, "label", "l", "", "Label shown in the notification")
	fs.StringVar(&o.icon, "icon", "", "Icon shown in the notification")
	fs.BoolVar(&o.snooze, "snooze", true, "Offer a snooze action")
	fs.BoolVar(&o.wakeCheck, "wake-check", false, "Ask again a few minutes after dismissal")
	fs.BoolVar(&o.disabled, "disabled", false, "Store the alarm without arming it")
}

func (o *alarmOptions) alarm(at string) (despertador.Alarm, error) {
	t, err := despertador.ParseWallTime(at)
	if err != nil {
		return despertador.Alarm{}, err
	}
	r, err := despertador.ParseRecurrence(o.repeat)
	if err != nil {
		return despertador.Alarm{}, err
	}
	return despertador.Alarm{
		ID:               o.id,
		Time:             t,
		Recurrence:       r,
		Enabled:          !o.disabled,
		SnoozeEnabled:    o.snooze,
		WakeCheckEnabled: o.wakeCheck,
		Display: despertador.Display{
			Label: o.label,
			Icon:  o.icon,
		},
	}, nil
}

var addOptions alarmOptions

var addCmd = &cobra.Command{
	Use:   "add TIME",
	Short: "Create or replace an alarm",
	Example: `  despertador add 7:00 --repeat mon,wed,fri --label Gym
  despertador add "6:45 am" --repeat weekdays --wake-check`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := addOptions.alarm(args[0])
		if err != nil {
			return err
		}
		return withStore(func(cfg *config.Config, store *sqlite.Store) error {
			ctx := cmd.Context()
			created := true
			if a.ID != "" {
				_, err := store.Get(ctx, a.ID)
				created = despertador.ErrorCode(err) == despertador.ErrNotFound
			}
			a, err := store.Put(ctx, a)
			if err != nil {
				return err
			}
			err = admit(ctx, newGate(cfg), store, a, created)
			changed(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), a)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alarm %s saved.\n", a.ID)
			if a.Enabled {
				next, err := despertador.NextTrigger(a.Time, a.Recurrence, time.Now())
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Next ring: %s\n", next.Format("Mon Jan 2 15:04"))
				}
			}
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List alarms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(cfg *config.Config, store *sqlite.Store) error {
			alarms, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				if alarms == nil {
					alarms = []despertador.Alarm{}
				}
				return printJSON(cmd.OutOrStdout(), alarms)
			}
			if len(alarms) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No alarms.")
				return nil
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tREPEAT\tENABLED\tNEXT\tLABEL")
			fmt.Fprintln(w, "--\t----\t------\t-------\t----\t-----")
			for _, a := range alarms {
				next := "-"
				if a.Enabled {
					if at, err := despertador.NextTrigger(a.Time, a.Recurrence, now); err == nil {
						next = at.Format("Mon Jan 2 15:04")
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
					a.ID,
					a.Time,
					a.Recurrence,
					a.Enabled,
					next,
					a.Display.Label,
				)
			}
			return w.Flush()
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm ID...",
	Aliases: []string{"delete"},
	Short:   "Delete alarms",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(cfg *config.Config, store *sqlite.Store) error {
			defer changed(cmd.ErrOrStderr(), cfg)
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func setEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(cfg *config.Config, store *sqlite.Store) error {
				ctx := cmd.Context()
				defer changed(cmd.ErrOrStderr(), cfg)
				gate := newGate(cfg)
				for _, id := range args {
					if err := store.SetEnabled(ctx, id, enabled); err != nil {
						return err
					}
					if !enabled {
						continue
					}
					a, err := store.Get(ctx, id)
					if err != nil {
						return err
					}
					if err := admit(ctx, gate, store, a, false); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func init() {
	addOptions.register(addCmd.Flags())

	rootCmd.AddCommand(
		addCmd,
		listCmd,
		rmCmd,
		setEnabledCmd("enable", "Enable alarms", true),
		setEnabledCmd("disable", "Disable alarms", false),
	)
}
