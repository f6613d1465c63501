// Command rvk-mkboot is the host-side build tool: it validates a
// build's TOML configuration, assembles a boot image from a kernel ELF
// and a device tree blob, smoke-tests a Wasm module against the
// embedded runtime, and benchmarks the work-stealing scheduler — all
// on the build host, never linked into the kernel binary itself.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rvk-mkboot",
		Short:         "Build-host tooling for the rvk kernel",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newValidateConfigCmd())
	root.AddCommand(newMkisoCmd())
	root.AddCommand(newWasmRunCmd())
	root.AddCommand(newBenchSchedCmd())

	return root
}
