package cmd

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"

	"github.com/driftware/deskhand/pkg/protocol"
)

const version = "0.1.0"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("deskhand %s (protocol %d, %s/%s)\n",
				version, protocol.ProtocolVersion, goruntime.GOOS, goruntime.GOARCH)
		},
	}
}
