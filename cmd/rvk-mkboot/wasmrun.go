package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rvkernel/rvk/internal/wasm/runtime"
	"github.com/rvkernel/rvk/internal/wasm/translate"
)

// newWasmRunCmd smoke-tests the embedded Wasm translator/runtime against
// a real binary from the host: decode, allocate an instance (resolving
// wasi_snapshot_preview1 imports against runtime.WASIImports), invoke an
// exported function, and print the result. This is the host-side
// equivalent of what the kernel does when it hosts a guest module,
// minus the hart/trap-stack plumbing only a running kernel has.
func newWasmRunCmd() *cobra.Command {
	var export string
	var args32 []int32

	cmd := &cobra.Command{
		Use:   "wasm-run <module.wasm>",
		Short: "Decode, instantiate, and call an exported function in a wasm module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			wasmBytes, err := os.ReadFile(cmdArgs[0])
			if err != nil {
				return err
			}

			translation, err := translate.Decode(wasmBytes)
			if err != nil {
				return fmt.Errorf("rvk-mkboot: decoding %s: %w", cmdArgs[0], err)
			}
			mod := &translation.Module

			imports, err := bindImports(mod)
			if err != nil {
				return err
			}

			inst, err := (runtime.Allocator{}).AllocateModule(mod, imports)
			if err != nil {
				return fmt.Errorf("rvk-mkboot: instantiating %s: %w", cmdArgs[0], err)
			}

			if export == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "module %q decoded and instantiated, no --export given\n", mod.Name)
				return nil
			}

			fn, ok := inst.Export(export)
			if !ok {
				return fmt.Errorf("rvk-mkboot: module has no export %q", export)
			}

			params := make([]runtime.Val, len(args32))
			for i, v := range args32 {
				params[i] = runtime.I32Val(v)
			}

			results, err := fn.Call(params)
			if err != nil {
				return fmt.Errorf("rvk-mkboot: calling %q: %w", export, err)
			}

			strs := make([]string, len(results))
			for i, r := range results {
				strs[i] = fmt.Sprintf("%d", r.I32())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s(%v) = [%s]\n", export, args32, strings.Join(strs, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&export, "export", "", "exported function to call after instantiation")
	cmd.Flags().Int32SliceVar(&args32, "arg", nil, "i32 argument to pass to the export (repeatable)")

	return cmd
}

// bindImports resolves every function the module imports against the
// wasi_snapshot_preview1 surface, in the order translate.Module keeps
// imported functions (component I's separate imported-vs-defined index
// space — see translate.Module.NumImportedFuncs).
func bindImports(mod *translate.Module) ([]runtime.HostFunc, error) {
	wasi := runtime.WASIImports()

	imports := make([]runtime.HostFunc, len(mod.ImportedFunctions))
	var next int
	for _, imp := range mod.Imports {
		if imp.Index.Kind != translate.EntityFunction {
			continue
		}
		fn, ok := wasi[imp.Field]
		if !ok {
			return nil, fmt.Errorf("rvk-mkboot: module imports unrecognized %s.%s", imp.Module, imp.Field)
		}
		imports[next] = fn
		next++
	}
	return imports, nil
}
