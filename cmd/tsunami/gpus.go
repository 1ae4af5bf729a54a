// File: cmd/tsunami/gpus.go
// Summary: The `gpus` subcommand: lists compute devices available to
// the GPU frame processor.

package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-runewidth"

	"github.com/framegrace/tsunami/processor"
)

func runGPUs(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("gpus", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	devices, err := processor.ListDevices()
	if err != nil {
		return fmt.Errorf("list GPU devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(stdout, "no GPU devices found")
		return nil
	}

	rows := make([][3]string, 0, len(devices)+1)
	rows = append(rows, [3]string{"INDEX", "NAME", "TYPE"})
	for _, d := range devices {
		rows = append(rows, [3]string{strconv.Itoa(d.Index), d.Name, d.Type})
	}
	printTable(stdout, rows)
	return nil
}

// printTable prints rows with columns padded to the widest visible
// cell in each column, measuring width with go-runewidth so names
// containing wide characters still line up.
func printTable(w io.Writer, rows [][3]string) {
	var widths [3]int
	for _, r := range rows {
		for i, cell := range r {
			if vw := runewidth.StringWidth(cell); vw > widths[i] {
				widths[i] = vw
			}
		}
	}
	for _, r := range rows {
		for i, cell := range r {
			pad := widths[i] - runewidth.StringWidth(cell)
			fmt.Fprint(w, cell)
			if i < len(r)-1 {
				for p := 0; p < pad+2; p++ {
					fmt.Fprint(w, " ")
				}
			}
		}
		fmt.Fprintln(w)
	}
}
