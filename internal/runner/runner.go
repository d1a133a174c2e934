package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"byterun/internal/config"
	"byterun/pkg/asm"
	"byterun/pkg/code"
	"byterun/pkg/color"
	"byterun/pkg/interpreter"
	"byterun/pkg/object"

	"github.com/charmbracelet/log"
)

type Runner struct {
	Verbose     bool      // Enable verbose output
	Trace       bool      // Log every executed instruction
	Disassemble bool      // Print the disassembly before running
	NoColor     bool      // Disable colored output
	MaxSteps    int       // Instruction budget, 0 keeps the configured value
	ConfigFile  string    // Path to a byterun.toml, looked up next to the source when empty
	CompileFile string    // Write the assembled unit as CBOR instead of running it
	SourceFile  string    // Path to the .bas or .cbor file
	Out         io.Writer // Program output, os.Stdout when nil
}

// Run loads the source file, then either writes it out as CBOR or executes it.
func (opts *Runner) Run(ctx context.Context) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	cfg, err := opts.config()
	if err != nil {
		return err
	}
	if !cfg.ColorEnabled() {
		color.EnableColor(false)
	}

	log.Info("Processing file", "file", opts.SourceFile)
	unit, err := opts.load()
	if err != nil {
		return err
	}

	if opts.Disassemble || cfg.Output.Disassemble {
		if err := code.Disassemble(opts.Out, unit); err != nil {
			return fmt.Errorf("disassembly failed: %w", err)
		}
	}

	if opts.CompileFile != "" {
		if isCompiled(opts.SourceFile) {
			fmt.Fprintln(opts.Out, color.Warning(opts.SourceFile+" is already a compiled unit"))
		}
		data, err := code.Marshal(unit)
		if err != nil {
			return fmt.Errorf("encoding failed: %w", err)
		}
		if err := os.WriteFile(opts.CompileFile, data, 0o644); err != nil {
			return fmt.Errorf("cannot write %s: %w", opts.CompileFile, err)
		}
		log.Info("Wrote code unit", "file", opts.CompileFile, "bytes", len(data))
		return nil
	}

	engine := interpreter.New(
		interpreter.WithWriter(opts.Out),
		interpreter.WithMaxSteps(cfg.Engine.MaxSteps),
		interpreter.WithMaxDepth(cfg.Engine.MaxDepth),
		interpreter.WithTrace(cfg.Engine.Trace),
	)

	if opts.Verbose {
		fmt.Fprintln(opts.Out, color.GreenText("\n=== Program Output ==="))
	}

	v, err := engine.Run(ctx, unit, nil, nil)
	if err != nil {
		var guest *interpreter.GuestError
		if errors.As(err, &guest) {
			fmt.Fprintln(opts.Out, color.Highlight(guest.Error(), guest.Triple.Kind.Name))
			return fmt.Errorf("uncaught %s", guest.Triple.Kind.Name)
		}
		fmt.Fprintln(opts.Out, color.Error(err.Error()))
		return fmt.Errorf("execution failed: %w", err)
	}

	log.Info("Finished", "steps", engine.Steps())
	if opts.Verbose && v != nil {
		fmt.Fprintf(opts.Out, "%s %s\n", color.GrayText("=>"), object.Repr(v))
	}

	return nil
}

// config loads the run configuration and applies the command line on top
func (opts *Runner) config() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.ConfigFile != "" {
		cfg, err = config.Load(opts.ConfigFile)
	} else {
		cfg, err = config.FindAndLoad(filepath.Dir(opts.SourceFile))
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	} else {
		log.Info("Loaded configuration", "file", cfg.Path)
	}

	if opts.MaxSteps > 0 {
		cfg.Engine.MaxSteps = opts.MaxSteps
	}
	if opts.Trace {
		cfg.Engine.Trace = true
	}
	if opts.NoColor {
		off := false
		cfg.Output.Color = &off
	}

	return cfg, nil
}

// load reads a CBOR-encoded unit or assembles a source file
func (opts *Runner) load() (*code.Unit, error) {
	if isCompiled(opts.SourceFile) {
		data, err := os.ReadFile(opts.SourceFile)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", opts.SourceFile, err)
		}
		return code.Unmarshal(data)
	}

	unit, err := asm.AssembleFile(opts.SourceFile)
	var errs asm.ErrorList
	if errors.As(err, &errs) {
		fmt.Fprintln(opts.Out, color.BrightRedText("=== Assembly Errors ==="))
		fmt.Fprintln(opts.Out, errs.Pretty())
		return nil, fmt.Errorf("assembly failed with %d errors", len(errs))
	}
	if err != nil {
		return nil, err
	}
	return unit, nil
}

func isCompiled(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".cbor")
}
