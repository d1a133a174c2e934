package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"byterun/internal/logger"
	"byterun/internal/runner"
	"byterun/pkg/color"

	"github.com/charmbracelet/log"
)

// Main entry point for the byterun interpreter.
func main() {
	options := runner.Runner{}
	var help bool

	flag.BoolVar(&help, "h", false, "Show help")
	flag.BoolVar(&options.Verbose, "v", false, "Verbose mode")
	flag.BoolVar(&options.NoColor, "n", false, "No color")
	flag.BoolVar(&options.Trace, "t", false, "Trace every executed instruction (implies -v)")
	flag.BoolVar(&options.Disassemble, "dis", false, "Print the disassembly before running")
	flag.StringVar(&options.ConfigFile, "config", "", "Path to a byterun.toml (default: search next to the source file)")
	flag.IntVar(&options.MaxSteps, "max-steps", 0, "Maximum number of executed instructions (0 = unlimited)")
	flag.StringVar(&options.CompileFile, "compile", "", "Write the assembled code unit as CBOR to this file instead of running it")

	flag.Parse()
	args := flag.Args()

	logger.Init(logger.Options{Debug: options.Verbose || options.Trace, NoColor: options.NoColor})
	if help {
		fmt.Printf("Usage: %s [options] <file.bas|file.cbor>\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}

	if options.NoColor {
		color.EnableColor(false)
	}

	if len(args) == 0 {
		log.Fatal("No input file provided", "help", fmt.Sprintf("%s -h", os.Args[0]))
	}

	options.SourceFile = args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := options.Run(ctx); err != nil {
		stop()
		log.Fatal("Execution failed", "error", err)
	}
}
