package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/ipc"
)

// toggleSpec describes an on/off setting reachable live and offline.
type toggleSpec struct {
	use     string
	short   string
	label   string
	live    func(cmd *cobra.Command, client *ipc.Client, enabled bool) (bool, error)
	offline func(cfg *config.Config, enabled bool)
}

func newBackgroundCommand(ctx *commandContext) *cobra.Command {
	return newToggleCommand(ctx, toggleSpec{
		use:   "background <on|off>",
		short: "Turn checking while typing on or off",
		label: "Background check",
		live: func(cmd *cobra.Command, client *ipc.Client, enabled bool) (bool, error) {
			resp, err := client.SetBackground(cmd.Context(), enabled)
			if err != nil {
				return false, err
			}
			return resp.Enabled, nil
		},
		offline: func(cfg *config.Config, enabled bool) {
			cfg.Checking.BackgroundCheck = enabled
		},
	})
}

func newAutoDetectCommand(ctx *commandContext) *cobra.Command {
	return newToggleCommand(ctx, toggleSpec{
		use:   "autodetect <on|off>",
		short: "Turn automatic language detection on or off",
		label: "Language auto-detect",
		live: func(cmd *cobra.Command, client *ipc.Client, enabled bool) (bool, error) {
			resp, err := client.SetAutoDetect(cmd.Context(), enabled)
			if err != nil {
				return false, err
			}
			return resp.Enabled, nil
		},
		offline: func(cfg *config.Config, enabled bool) {
			cfg.Checking.AutoDetectLanguage = enabled
		},
	})
}

func newToggleCommand(ctx *commandContext, spec toggleSpec) *cobra.Command {
	return &cobra.Command{
		Use:       spec.use,
		Short:     spec.short,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseSwitch(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.dialClient()
			switch {
			case err == nil:
				defer client.Close()
				if enabled, err = spec.live(cmd, client, enabled); err != nil {
					return err
				}
			case errors.Is(err, errNotRunning):
				if err := ctx.persistOffline(func(cfg *config.Config) error {
					spec.offline(cfg, enabled)
					return nil
				}); err != nil {
					return err
				}
			default:
				return err
			}
			if ok, err := writeStructured(ctx, cmd, ipc.ToggleResponse{Enabled: enabled}); ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", spec.label, onOff(enabled))
			return nil
		},
	}
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "yes", "1", "enable":
		return true, nil
	case "off", "false", "no", "0", "disable":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", value)
	}
}
