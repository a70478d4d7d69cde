package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <resource> <id> [id2]",
	Short: "Delete stored resources",
	Long: `Delete a resource from the server store.

Resources:
  role <id>
  device <id>
  config <id>
  messages <device-id> <role-id>   (clears the history)

Examples:
  giztalk delete device dev1
  giztalk delete messages dev1 r1`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		switch args[0] {
		case "role":
			err = st.Roles.Delete(ctx, args[1])
		case "device":
			err = st.Devices.Delete(ctx, args[1])
		case "config":
			err = st.ModelConfigs.Delete(ctx, args[1])
		case "messages", "msg":
			if len(args) < 3 {
				return fmt.Errorf("usage: giztalk delete messages <device-id> <role-id>")
			}
			err = st.Messages.Clear(ctx, args[1], args[2])
		default:
			return fmt.Errorf("unknown resource %q", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s deleted\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
