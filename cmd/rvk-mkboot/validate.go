package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rvkernel/rvk/internal/bootconfig"
)

func newValidateConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-config <path>",
		Short: "Parse and validate a build-time TOML configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootconfig.FromFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:            %s\n", cfg.Name)
			fmt.Fprintf(out, "version:         %s\n", cfg.Version)
			fmt.Fprintf(out, "memory-mode:     %s\n", cfg.MemoryMode)
			fmt.Fprintf(out, "target:          %s\n", cfg.Target)
			fmt.Fprintf(out, "buildhash:       %016x\n", cfg.BuildHash)
			fmt.Fprintf(out, "kernel.stack-size-pages:      %d\n", cfg.Kernel.StackSizePages)
			fmt.Fprintf(out, "kernel.trap-stack-size-pages: %d\n", cfg.Kernel.TrapStackSizePages)
			fmt.Fprintf(out, "kernel.heap-size-pages:       %d\n", cfg.Kernel.HeapSizePages)
			fmt.Fprintf(out, "kernel.log-level:             %s\n", cfg.Kernel.LogLevel)
			fmt.Fprintf(out, "kernel.uart-baud-rate:        %d\n", cfg.Kernel.UARTBaudRate)
			fmt.Fprintf(out, "kernel.linker-script:         %s\n", cfg.Kernel.LinkerScript)
			fmt.Fprintf(out, "bootloader.stack-size-pages:  %d\n", cfg.Loader.StackSizePages)
			fmt.Fprintf(out, "bootloader.log-level:         %s\n", cfg.Loader.LogLevel)
			fmt.Fprintf(out, "bootloader.linker-script:     %s\n", cfg.Loader.LinkerScript)
			return nil
		},
	}
	return cmd
}
