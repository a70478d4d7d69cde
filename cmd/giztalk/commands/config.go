package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/go/pkg/cli"
)

var (
	ctxServerURL string
	ctxDeviceID  string
	ctxDataDir   string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI contexts",
	Long: `Manage the contexts the CLI uses to reach giztalk servers.

Examples:
  giztalk config add-context dev --server ws://localhost:8091/ws/giztalk/v1/ --device user_chat_u1
  giztalk config use-context dev
  giztalk config list
  giztalk config show dev`,
}

var configAddCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add or update a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx := &cli.Context{
			ServerURL: ctxServerURL,
			DeviceID:  ctxDeviceID,
			DataDir:   ctxDataDir,
		}
		if existing, err := cfg.GetContext(args[0]); err == nil {
			if ctx.ServerURL == "" {
				ctx.ServerURL = existing.ServerURL
			}
			if ctx.DeviceID == "" {
				ctx.DeviceID = existing.DeviceID
			}
			if ctx.DataDir == "" {
				ctx.DataDir = existing.DataDir
			}
			ctx.Extra = existing.Extra
		}
		if err := cfg.AddContext(args[0], ctx); err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			if err := cfg.UseContext(args[0]); err != nil {
				return err
			}
		}
		cli.PrintSuccess("context %q saved", args[0])
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("current context is %q", args[0])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		sort.Strings(names)
		for _, name := range names {
			marker := " "
			if name == cfg.CurrentContext {
				marker = "*"
			}
			ctx, _ := cfg.GetContext(name)
			fmt.Printf("%s %-16s %s\n", marker, name, ctx.ServerURL)
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a context",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		ctx, err := cfg.ResolveContext(name)
		if err != nil {
			return err
		}
		return cli.Output(ctx, cli.OutputOptions{})
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("context %q deleted", args[0])
		return nil
	},
}

func init() {
	configAddCmd.Flags().StringVar(&ctxServerURL, "server", "", "gateway websocket URL")
	configAddCmd.Flags().StringVar(&ctxDeviceID, "device", "", "device id the simulator presents")
	configAddCmd.Flags().StringVar(&ctxDataDir, "data-dir", "", "server data directory for local commands")

	configCmd.AddCommand(configAddCmd, configUseCmd, configListCmd, configShowCmd, configDeleteCmd)
	rootCmd.AddCommand(configCmd)
}
