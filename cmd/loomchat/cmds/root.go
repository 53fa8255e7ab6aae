// Package cmds holds the loomchat subcommands.
package cmds

import (
	"github.com/spf13/cobra"
)

func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		newSessionCommand(),
		newSendCommand(),
		newRetryCommand(),
		newEditCommand(),
		newDeleteMessageCommand(),
		newSwitchCommand(),
		newStatusCommand(),
		newUsageCommand(),
		newConfigCommand(),
		newKeysCommand(),
		newModelsCommand(),
	)
}
