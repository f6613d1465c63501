package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newMkisoCmd reports what building bootable media would involve
// without doing it — spec.md explicitly scopes ISO9660 image building
// out ("only used by the build host", listed among the Non-goals), so
// this stays a stub rather than a real El Torito/ISO9660 writer.
func newMkisoCmd() *cobra.Command {
	var kernelPath, fdtPath, out string

	cmd := &cobra.Command{
		Use:   "mkiso",
		Short: "Print the steps that would assemble a bootable ISO9660 image (stub)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if kernelPath == "" {
				return fmt.Errorf("rvk-mkboot: --kernel is required")
			}
			if out == "" {
				out = "rvk.iso"
			}

			kernelData, unmapKernel, err := mmapFile(kernelPath)
			if err != nil {
				return fmt.Errorf("rvk-mkboot: reading kernel image: %w", err)
			}
			defer unmapKernel()

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "would build %s:\n", out)
			fmt.Fprintf(stdout, "  1. embed kernel image from %s (%d bytes) as /boot/rvk.elf\n", kernelPath, len(kernelData))
			if fdtPath != "" {
				fdtData, unmapFDT, err := mmapFile(fdtPath)
				if err != nil {
					return fmt.Errorf("rvk-mkboot: reading device tree blob: %w", err)
				}
				defer unmapFDT()
				fmt.Fprintf(stdout, "  2. embed device tree blob from %s (%d bytes) as /boot/rvk.dtb\n", fdtPath, len(fdtData))
			} else {
				fmt.Fprintf(stdout, "  2. no device tree blob given; firmware-provided FDT would be used\n")
			}
			fmt.Fprintf(stdout, "  3. write an El Torito boot catalog pointing at the RISC-V loader stage\n")
			fmt.Fprintf(stdout, "  4. pack as ISO9660 (not implemented; out of scope for this tool)\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&kernelPath, "kernel", "", "path to the kernel ELF image")
	cmd.Flags().StringVar(&fdtPath, "fdt", "", "path to a device tree blob to embed")
	cmd.Flags().StringVar(&out, "out", "", "output image path (default rvk.iso)")

	return cmd
}
