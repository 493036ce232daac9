package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"thermalguard/internal/actionlog"
	"thermalguard/internal/app"
	"thermalguard/internal/calibration"
	"thermalguard/internal/geometry"
	"thermalguard/internal/relay"
)

func watchEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Screens MQTT frames and serves the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			logger.Info("starting", "version", version, "env", cfg.AppEnv, "log_level", cfg.LogLevel.String())
			err = app.Run(cmd.Context(), cfg, logger)
			logger.Info("shutting down")
			return err
		},
	}
}

func tempEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "temp <pixel>...",
		Short: "Converts raw pixel values to temperatures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pixels, err := parseFloats(args)
			if err != nil {
				return err
			}
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			table, err := calibration.Load(cfg.PixelValuesPath, cfg.KnownTempsPath, logger)
			if err != nil {
				return err
			}
			return printTemperatures(cmd.OutOrStdout(), table, pixels)
		},
	}
}

func distanceEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "distance <x1> <y1> <x2> <y2>",
		Short: "Prints the Euclidean distance between two points",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloats(args)
			if err != nil {
				return err
			}
			d := geometry.Distance(geometry.Point{X: v[0], Y: v[1]}, geometry.Point{X: v[2], Y: v[3]})
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(d, 'f', -1, 64))
			return err
		},
	}
}

func smsEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "sms <recipient> <message>",
		Short: "Triggers an SMS through the cloud properties",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			comps, err := app.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := comps.Close(); err != nil {
					logger.Error("close components", "error", err)
				}
			}()
			if comps.SMS == nil {
				return errors.New("sms disabled: CLIENT_ID, CLIENT_SECRET, THING_ID and PROPERTY_ID_* are required")
			}

			recipient, message := args[0], args[1]
			sendErr := comps.SMS.Send(cmd.Context(), recipient, message)
			a := comps.Recorder.Record(cmd.Context(), actionlog.KindSMS, recipient+": "+message, sendErr)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sms %s\n", a.Outcome)
			if sendErr != nil {
				return sendErr
			}
			return err
		},
	}
}

func relayEntry() *cobra.Command {
	return &cobra.Command{
		Use:       "relay <0|1>",
		Short:     "Switches the relay board off (0) or on (1)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{relay.Off, relay.On},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			comps, err := app.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := comps.Close(); err != nil {
					logger.Error("close components", "error", err)
				}
			}()

			var dev io.Writer
			if comps.RelayPort != nil {
				dev = comps.RelayPort
			}
			ctlErr := comps.Relay.Control(dev, args[0])
			a := comps.Recorder.Record(cmd.Context(), actionlog.KindRelay, args[0], ctlErr,
				relay.ErrNoDevice, relay.ErrInvalidCommand)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "relay %s\n", a.Outcome)
			if ctlErr != nil {
				return ctlErr
			}
			return err
		},
	}
}

func historyEntry() *cobra.Command {
	var (
		kind   string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Lists recorded SMS and relay actions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			comps, err := app.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := comps.Close(); err != nil {
					logger.Error("close components", "error", err)
				}
			}()

			actions, err := comps.Actions.List(cmd.Context(), k, limit)
			if err != nil {
				return err
			}
			if asJSON {
				if actions == nil {
					actions = []actionlog.Action{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(actions)
			}
			return printActions(cmd.OutOrStdout(), actions)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only list this kind (sms or relay)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of actions")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, s := range args {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", s, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid number %q: not finite", s)
		}
		out[i] = v
	}
	return out, nil
}

func parseKind(s string) (actionlog.Kind, error) {
	switch k := actionlog.Kind(s); k {
	case "", actionlog.KindSMS, actionlog.KindRelay:
		return k, nil
	default:
		return "", fmt.Errorf("invalid kind %q (allowed: sms, relay)", s)
	}
}

func printTemperatures(w io.Writer, table *calibration.Table, pixels []float64) error {
	for _, p := range pixels {
		t, err := table.Temperature(p)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\t%.2f\n", strconv.FormatFloat(p, 'f', -1, 64), t); err != nil {
			return err
		}
	}
	return nil
}

func printActions(w io.Writer, actions []actionlog.Action) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tKIND\tOUTCOME\tDETAIL\tERROR")
	for _, a := range actions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.At.Local().Format(time.DateTime), a.Kind, a.Outcome, a.Detail, a.Error)
	}
	return tw.Flush()
}
