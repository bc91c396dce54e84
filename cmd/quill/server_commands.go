package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/ipc"
)

func newServerCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Control the embedded HTTP check server",
	}
	cmd.AddCommand(newServerStatusCommand(ctx))
	cmd.AddCommand(newServerStartCommand(ctx))
	cmd.AddCommand(newServerStopCommand(ctx))
	cmd.AddCommand(newServerEnableCommand(ctx, true))
	cmd.AddCommand(newServerEnableCommand(ctx, false))
	return cmd
}

func newServerStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the HTTP server is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				return renderServer(ctx, cmd, &ipc.ServerResponse{Server: status.Server})
			})
		},
	}
}

func newServerStartCommand(ctx *commandContext) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP server for this session",
		Long: "Start the HTTP server without changing the run-on-startup preference. " +
			"Use \"quill server enable\" to make it persistent.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var portArg *int
			if cmd.Flags().Changed("port") {
				portArg = &port
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ServerStart(cmd.Context(), portArg)
				if err != nil {
					return err
				}
				return renderServer(ctx, cmd, resp)
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default: configured port)")
	return cmd
}

func newServerStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the HTTP server for this session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ServerStop(cmd.Context())
				if err != nil {
					return err
				}
				return renderServer(ctx, cmd, resp)
			})
		},
	}
}

func newServerEnableCommand(ctx *commandContext, enabled bool) *cobra.Command {
	use, short := "enable", "Start the HTTP server and run it on every startup"
	if !enabled {
		use, short = "disable", "Stop the HTTP server and keep it off on startup"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.dialClient()
			if errors.Is(err, errNotRunning) {
				if err := ctx.persistOffline(func(cfg *config.Config) error {
					cfg.Server.RunOnStartup = enabled
					return nil
				}); err != nil {
					return err
				}
				if ok, err := writeStructured(ctx, cmd, ipc.ServerInfo{RunOnStartup: enabled}); ok {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "HTTP server run on startup: %s (takes effect on next start)\n", yesNo(enabled))
				return nil
			}
			if err != nil {
				return err
			}
			defer client.Close()
			resp, err := client.ServerEnable(cmd.Context(), enabled)
			if err != nil {
				return err
			}
			return renderServer(ctx, cmd, resp)
		},
	}
}

// renderServer prints the server state. A bind failure carried in the
// response is printed and returned so the command exits non-zero.
func renderServer(ctx *commandContext, cmd *cobra.Command, resp *ipc.ServerResponse) error {
	if ok, err := writeStructured(ctx, cmd, resp); ok {
		if err == nil && resp.Error != "" {
			return errors.New(resp.Error)
		}
		return err
	}
	out := cmd.OutOrStdout()
	if resp.Server.Running {
		fmt.Fprintf(out, "HTTP server: running at %s\n", resp.Server.URL)
	} else {
		fmt.Fprintln(out, "HTTP server: stopped")
	}
	fmt.Fprintf(out, "Run on startup: %s\n", yesNo(resp.Server.RunOnStartup))
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}
