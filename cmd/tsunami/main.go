// File: cmd/tsunami/main.go
// Summary: Unified tsunami command: dispatches to the gpus and media
// subcommands.
// Usage: tsunami gpus | tsunami media [flags] MEDIA_OBJECT...

package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tsunami <gpus|media> [flags]")
	}

	switch args[0] {
	case "gpus":
		return runGPUs(args[1:], os.Stdout)

	case "media":
		fs := flag.NewFlagSet("media", flag.ContinueOnError)
		var cfg globalConfig
		registerGlobalFlags(fs, &cfg)
		gpuModeFlag := fs.String("gpu-mode", "none", "none, preferred, or required")
		gpuIndex := fs.Int("gpu-index", 0, "GPU device index from the gpus subcommand")
		cachingFlag := fs.String("caching", "None", "None, KeepLast, or KeepAllLazy")

		if err := fs.Parse(args[1:]); err != nil {
			if err == flag.ErrHelp {
				return nil
			}
			return err
		}
		return runMedia(mediaArgs{
			global:  cfg,
			objects: fs.Args(),
			gpuMode: *gpuModeFlag,
			gpuIdx:  *gpuIndex,
			caching: *cachingFlag,
		})

	case "-h", "--help", "help":
		fmt.Println("usage: tsunami <gpus|media> [flags] MEDIA_OBJECT...")
		return nil

	default:
		return fmt.Errorf("unknown subcommand %q (want gpus or media)", args[0])
	}
}
