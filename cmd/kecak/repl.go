package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/kecaknoah/compiler"
	"github.com/chazu/kecaknoah/vm"
)

const historyFile = ".kecak_history"

func cmdRepl(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
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

	s := newSession(cfg.opts, stdout)
	// Preload the named files so their declarations are callable.
	if fs.NArg() > 0 {
		b := newBuilder(cfg)
		img, err := b.buildFiles(fs.Args())
		b.Close()
		if err == nil {
			err = s.vm.Load(img)
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	fmt.Fprintln(stdout, "Kecaknoah REPL (type :help for commands, :quit to exit)")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(s.complete)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		input, ok := readInput(ln)
		if !ok {
			fmt.Fprintln(stdout)
			return 0
		}
		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))

		if strings.HasPrefix(trimmed, ":") {
			if quit := s.command(trimmed, stdout); quit {
				return 0
			}
			continue
		}

		v, err := s.eval(input)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		if v != nil {
			fmt.Fprintln(stdout, display(v))
		}
	}
}

// readInput reads one entry, prompting for continuation lines while a
// declaration is unfinished.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := ">> "
		if b.Len() > 0 {
			prompt = ".. "
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return "", false
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if !isDeclaration(src) {
			return src, true
		}
		_, perr := compiler.ParseSource(src)
		var pe *compiler.ParseError
		if errors.As(perr, &pe) && pe.Incomplete {
			continue
		}
		return src, true
	}
}

// isDeclaration reports whether input starts a class or function
// declaration rather than an expression.
func isDeclaration(input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "func", "class":
		return true
	}
	return false
}

// session is the state of one interactive session. Locals assigned by an
// expression are promoted to VM globals so later entries see them.
type session struct {
	vm   *vm.VM
	opts compiler.Options
}

func newSession(opts compiler.Options, out io.Writer) *session {
	v := vm.New()
	v.Out = out
	return &session{vm: v, opts: opts}
}

// eval loads a declaration or evaluates an expression. Declarations
// produce a nil value.
func (s *session) eval(input string) (vm.Value, error) {
	if isDeclaration(input) {
		img, err := compiler.Compile(input, s.opts)
		if err != nil {
			return nil, err
		}
		return nil, s.vm.Load(img)
	}

	img, err := compiler.CompileExpr(input, s.opts)
	if err != nil {
		return nil, err
	}
	if err := s.vm.Load(img); err != nil {
		return nil, err
	}
	frame, err := s.vm.NewFrame(img.Methods[0].Name)
	if err != nil {
		return nil, err
	}
	if err := frame.Execute(); err != nil {
		return nil, err
	}
	for _, name := range frame.Locals() {
		v, _ := frame.Local(name)
		s.vm.SetGlobal(name, v)
	}
	return frame.ReturnValue, nil
}

// names lists user-visible names, leaving out generated methods such as
// <expr> and <lambdaN>.
func (s *session) names() []string {
	var out []string
	for _, name := range s.vm.Names() {
		if !strings.HasPrefix(name, "<") {
			out = append(out, name)
		}
	}
	return out
}

// display renders a REPL result, quoting strings.
func display(v vm.Value) string {
	if str, ok := v.(vm.String); ok {
		return strconv.Quote(string(str))
	}
	return v.String()
}

// command handles a REPL meta-command and reports whether to quit.
func (s *session) command(cmd string, out io.Writer) bool {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(out, "  :names            List globals, functions and classes")
		fmt.Fprintln(out, "  :disasm EXPR      Show the IL for an expression")
		fmt.Fprintln(out, "  :fold on|off      Toggle constant folding")
		fmt.Fprintln(out, "  :quit, :q         Exit REPL")
		fmt.Fprintln(out, "Lines starting with func or class declare; anything else is evaluated.")
	case ":names":
		fmt.Fprintln(out, strings.Join(s.names(), " "))
	case ":disasm":
		src := strings.TrimSpace(strings.TrimPrefix(cmd, fields[0]))
		img, err := compiler.CompileExpr(src, s.opts)
		if err != nil {
			fmt.Fprintf(out, "Compile error: %v\n", err)
			break
		}
		fmt.Fprint(out, vm.DisassembleImage(img))
	case ":fold":
		if len(fields) == 2 {
			s.opts.FoldConstants = fields[1] == "on"
		}
		fmt.Fprintf(out, "constant folding: %v\n", s.opts.FoldConstants)
	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", fields[0])
	}
	return false
}

// complete offers names known to the VM and language keywords.
func (s *session) complete(line string) []string {
	start := strings.LastIndexFunc(line, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) + 1
	prefix := line[start:]
	if prefix == "" {
		return nil
	}
	var out []string
	for _, name := range append(s.names(), compiler.Keywords()...) {
		if strings.HasPrefix(name, prefix) {
			out = append(out, line[:start]+name)
		}
	}
	sort.Strings(out)
	return out
}
