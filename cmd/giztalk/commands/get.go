package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/go/pkg/cli"
	"github.com/haivivi/giztalk/go/pkg/store"
)

var getOutput string

var getCmd = &cobra.Command{
	Use:   "get <resource> [args]",
	Short: "List or show stored resources",
	Long: `List resources in the server store, or show one by id.

Resources:
  roles [id]
  devices [id]
  configs [id]
  messages <device-id> <role-id>

Examples:
  giztalk get roles
  giztalk get devices dev1
  giztalk get messages dev1 r1 -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		var result any
		switch args[0] {
		case "roles", "role":
			if len(args) > 1 {
				result, err = st.Roles.Get(ctx, args[1])
			} else {
				result, err = st.Roles.List(ctx)
			}
		case "devices", "device":
			if len(args) > 1 {
				result, err = st.Devices.Get(ctx, args[1])
			} else {
				result, err = st.Devices.List(ctx)
			}
		case "configs", "config":
			if len(args) > 1 {
				result, err = st.ModelConfigs.Get(ctx, args[1])
			} else {
				var cfgs []*store.ModelConfig
				cfgs, err = st.ModelConfigs.List(ctx)
				for _, c := range cfgs {
					c.APIKey = cli.MaskAPIKey(c.APIKey)
					c.APISecret = cli.MaskAPIKey(c.APISecret)
				}
				result = cfgs
			}
		case "messages", "msg":
			if len(args) < 3 {
				return fmt.Errorf("usage: giztalk get messages <device-id> <role-id>")
			}
			result, err = st.Messages.All(ctx, args[1], args[2])
		default:
			return fmt.Errorf("unknown resource %q", args[0])
		}
		if err != nil {
			return err
		}
		return cli.Output(result, cli.OutputOptions{Format: cli.OutputFormat(getOutput)})
	},
}

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "yaml", "output format (yaml, json, raw)")
	rootCmd.AddCommand(getCmd)
}
