package cli

import (
	"github.com/spf13/cobra"

	internalcli "github.com/SmitUplenchwar2687/Tapedeck/internal/cli"
)

// NewRootCmd creates the public tapedeck root command for embedding.
func NewRootCmd() *cobra.Command {
	return internalcli.NewRootCmd()
}
