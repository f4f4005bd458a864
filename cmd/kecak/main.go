// Kecaknoah CLI - compile, run and inspect Kecaknoah programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/kecaknoah/cache"
	"github.com/chazu/kecaknoah/compiler"
	"github.com/chazu/kecaknoah/manifest"
	"github.com/chazu/kecaknoah/server"
	"github.com/chazu/kecaknoah/vm"
)

var log = commonlog.GetLogger("kecaknoah.cli")

func main() {
	os.Exit(dispatch(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: kecak <command> [options] [files...]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  run      Compile and run source files (.kn) or images (.kcb)\n")
	fmt.Fprintf(w, "  compile  Compile source files into a bytecode image\n")
	fmt.Fprintf(w, "  disasm   Print the IL listing of sources or images\n")
	fmt.Fprintf(w, "  repl     Start an interactive session\n")
	fmt.Fprintf(w, "  lsp      Start the language server on stdio\n")
	fmt.Fprintf(w, "  cache    Manage the compiled-image cache (purge, stats)\n")
	fmt.Fprintf(w, "\nWithout files, run/compile/disasm use the sources listed in kecaknoah.toml.\n")
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  kecak run hello.kn              # Run main() in hello.kn\n")
	fmt.Fprintf(w, "  kecak run -entry start app.kcb  # Run start() from an image\n")
	fmt.Fprintf(w, "  kecak compile -o app.kcb src/*.kn\n")
	fmt.Fprintf(w, "  kecak disasm -fold hello.kn\n")
}

// dispatch runs one subcommand and returns the process exit code.
func dispatch(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return cmdRun(rest, stdout, stderr)
	case "compile":
		return cmdCompile(rest, stdout, stderr)
	case "disasm":
		return cmdDisasm(rest, stdout, stderr)
	case "repl":
		return cmdRepl(rest, stdout, stderr)
	case "lsp":
		return cmdLSP(rest, stderr)
	case "cache":
		return cmdCache(rest, stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		usage(stderr)
		return 2
	}
}

// config is the manifest merged with command-line flags.
type config struct {
	manifest  *manifest.Manifest
	opts      compiler.Options
	entry     string
	verbosity int
	useCache  bool
	cachePath string
}

// commonFlags registers the flags shared by every subcommand.
type commonFlags struct {
	verbose *int
	fold    *bool
	noFold  *bool
	noCache *bool
	entry   *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		verbose: fs.Int("v", -1, "log verbosity (0-5); defaults to the manifest value"),
		fold:    fs.Bool("fold", false, "fold constant expressions"),
		noFold:  fs.Bool("no-fold", false, "disable constant folding even if the manifest enables it"),
		noCache: fs.Bool("no-cache", false, "bypass the compiled-image cache"),
		entry:   fs.String("entry", "", "entry function (default: manifest entry or main)"),
	}
}

// resolveConfig loads kecaknoah.toml from the working directory upward and
// applies flag overrides on top of it.
func resolveConfig(f *commonFlags) (*config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}

	cfg := &config{manifest: m, entry: "main"}
	if m != nil {
		cfg.opts = m.CompilerOptions()
		cfg.entry = m.Source.Entry
		cfg.verbosity = m.Log.Verbosity
		cfg.useCache = m.Cache.Enabled
		cfg.cachePath = m.CachePath()
	}

	if *f.verbose >= 0 {
		cfg.verbosity = *f.verbose
	}
	if *f.fold {
		cfg.opts.FoldConstants = true
	}
	if *f.noFold {
		cfg.opts.FoldConstants = false
	}
	if *f.noCache {
		cfg.useCache = false
	}
	if *f.entry != "" {
		cfg.entry = *f.entry
	}

	commonlog.Configure(cfg.verbosity, nil)
	return cfg, nil
}

// inputs returns the files named on the command line, or the manifest's
// source files when there are none.
func (cfg *config) inputs(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if cfg.manifest == nil {
		return nil, errors.New("no input files and no kecaknoah.toml found")
	}
	files, err := cfg.manifest.SourceFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files under %v", manifest.SourceExt, cfg.manifest.Source.Dirs)
	}
	return files, nil
}

// openCache opens the image cache if enabled. A cache that cannot be
// opened is logged and skipped.
func (cfg *config) openCache() *cache.Store {
	if !cfg.useCache {
		return nil
	}
	path := cfg.cachePath
	if path == "" {
		var err error
		if path, err = cache.DefaultPath(); err != nil {
			log.Warningf("cache disabled: %s", err)
			return nil
		}
	}
	store, err := cache.Open(path)
	if err != nil {
		log.Warningf("cache disabled: %s", err)
		return nil
	}
	return store
}

func cmdRun(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cf := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	files, err := cfg.inputs(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	b := newBuilder(cfg)
	defer b.Close()
	img, err := b.buildFiles(files)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	v := vm.New()
	v.Out = stdout
	if err := v.Load(img); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	result, err := v.Run(cfg.entry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	// An integer result becomes the exit code
	if n, ok := result.(vm.Integer); ok {
		return int(n)
	}
	return 0
}

func cmdCompile(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cf := addCommonFlags(fs)
	out := fs.String("o", "", "output image path (default: <project name or first file>.kcb)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	files, err := cfg.inputs(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	b := newBuilder(cfg)
	defer b.Close()
	img, err := b.buildFiles(files)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	path := *out
	if path == "" {
		path = defaultImagePath(cfg, files)
	}
	if err := vm.SaveImageFile(path, img); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote %s (%d classes, %d methods)\n", path, len(img.Classes), len(img.Methods))
	return 0
}

func cmdDisasm(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cf := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	files, err := cfg.inputs(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	b := newBuilder(cfg)
	defer b.Close()
	img, err := b.buildFiles(files)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprint(stdout, vm.DisassembleImage(img))
	return 0
}

func cmdLSP(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("lsp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cf := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := server.NewLSP(cfg.opts).Run(); err != nil {
		fmt.Fprintf(stderr, "LSP server error: %v\n", err)
		return 1
	}
	return 0
}

func cmdCache(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cf := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "Usage: kecak cache purge|stats\n")
		return 2
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg.useCache = true
	store := cfg.openCache()
	if store == nil {
		fmt.Fprintf(stderr, "Error: cache unavailable\n")
		return 1
	}
	defer store.Close()

	switch fs.Arg(0) {
	case "purge":
		n, err := store.Purge()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Removed %d cached images\n", n)
	case "stats":
		n, err := store.Len()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "%d cached images\n", n)
	default:
		fmt.Fprintf(stderr, "unknown cache command %q\n", fs.Arg(0))
		return 2
	}
	return 0
}
