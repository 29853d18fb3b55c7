// Package cmd wires the unlocker into a CLI. Running the binary with no
// arguments opens the graphical shell instead.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"kfnunlocker/gui"
	"kfnunlocker/kfn"
	"kfnunlocker/unlocker"
)

var rootCmd = &cobra.Command{
	Use:   "kfnunlocker",
	Short: "Remove the lock from Karafun KFN song files",
	Run: func(cmd *cobra.Command, args []string) {
		gui.Run()
	},
}

func init() {
	var output string
	unlockCmd := &cobra.Command{
		Use:   "unlock [file.kfn]",
		Short: "Write an unlocked copy of a KFN file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			dst := output
			if dst == "" {
				dst = unlocker.OutputPath(src)
			}
			if err := unlocker.UnlockFile(src, dst); err != nil {
				return err
			}
			slog.Info("unlocked", "input", src, "output", dst)
			return nil
		},
	}
	unlockCmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <name>-Unlocked.kfn)")

	infoCmd := &cobra.Command{
		Use:   "info [file.kfn]",
		Short: "Show container headers and subfiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readContainer(args[0])
			if err != nil {
				return err
			}
			printReport(unlocker.Inspect(f))
			return nil
		},
	}

	var dir string
	extractCmd := &cobra.Command{
		Use:   "extract [file.kfn]",
		Short: "Unlock a KFN file and dump its subfiles to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readContainer(args[0])
			if err != nil {
				return err
			}
			if err := unlocker.Unlock(f); err != nil {
				return err
			}
			out := dir
			if out == "" {
				out = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			if err := unlocker.Extract(f, out); err != nil {
				return err
			}
			slog.Info("extracted", "subfiles", len(f.Subfiles), "dir", out)
			return nil
		},
	}
	extractCmd.Flags().StringVarP(&dir, "dir", "d", "", "output directory (default <name>/)")

	rootCmd.AddCommand(unlockCmd, infoCmd, extractCmd)
}

func readContainer(path string) (*kfn.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return kfn.Decode(data)
}

func printReport(r *unlocker.Report) {
	if r.Locked {
		fmt.Println("locked: yes")
	} else {
		fmt.Println("locked: no")
	}
	for _, h := range r.Headers {
		fmt.Println(h)
	}
	fmt.Printf("%d subfiles:\n", len(r.Subfiles))
	for _, sf := range r.Subfiles {
		line := fmt.Sprintf("  %-30s %-8s %8d bytes", sf.Name, sf.Type, sf.Size)
		if sf.Encrypted {
			line += "  encrypted"
		}
		if sf.Width > 0 {
			line += fmt.Sprintf("  %dx%d", sf.Width, sf.Height)
		}
		fmt.Println(line)
	}
}

func Run() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("", "error", err.Error())
		os.Exit(1)
	}
}
