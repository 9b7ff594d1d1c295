// Command jinjac renders or type-checks a template file against a JSON or
// YAML context document, wiring the template engine to an in-memory
// SQLite-backed adapter bridge as the `adapter` global.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/jinjacore/dbtjinja/internal/adapter"
	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/config"
	"github.com/jinjacore/dbtjinja/internal/lexer"
	"github.com/jinjacore/dbtjinja/internal/value"
	"github.com/jinjacore/dbtjinja/pkg/jinja"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(os.Stderr, "internal error: %v\n", r)
			fmt.Fprintln(os.Stderr, "this is a bug, please report it")
			os.Exit(1)
		}
	}()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "render":
		handleRender(os.Args[2:])
	case "check":
		handleCheck(os.Args[2:])
	case "-help", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  jinjac render <template> [-context <file.json|file.yaml>] [-config <file.yaml>]
  jinjac check <template> [-config <file.yaml>]`)
}

func colorize(code, s string) string {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return s
	}
	return fmt.Sprintf("\x1b[%sm%s\x1b[0m", code, s)
}

// flagValue scans a simple "-name value" pair out of args, returning "" if
// absent.
func flagValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func loadOptions(path string) (config.Options, error) {
	if path == "" {
		return config.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Options{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return config.Load(data)
}

func loadContext(path string) (map[string]interface{}, error) {
	ctx := map[string]interface{}{}
	if path == "" {
		return ctx, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parsing context %s: %w", path, err)
	}
	return ctx, nil
}

func delimitersOf(opts config.Options) lexer.Delimiters {
	return lexer.Delimiters{
		BlockBegin: opts.BlockBegin, BlockEnd: opts.BlockEnd,
		VarBegin: opts.VarBegin, VarEnd: opts.VarEnd,
		CommentBegin: opts.CommentBegin, CommentEnd: opts.CommentEnd,
		LstripBlocks: opts.LstripBlocks, TrimBlocks: opts.TrimBlocks,
	}
}

// slogListener logs ref()/source() call sites for local debugging, the
// minimal observability a host wires around the bare Listener contract.
type slogListener struct {
	log *slog.Logger
}

func (s *slogListener) OnRef(id uuid.UUID, name string, args []value.Value, span ast.Span) {
	s.log.Debug("ref", "id", id, "name", name, "line", span.Start.Line)
}

func (s *slogListener) OnSource(id uuid.UUID, name string, args []value.Value, span ast.Span) {
	s.log.Debug("source", "id", id, "name", name, "line", span.Start.Line)
}

func newEnvironment(tplPath, configPath string, logger *slog.Logger) (*jinja.Environment, string, error) {
	opts, err := loadOptions(configPath)
	if err != nil {
		return nil, "", err
	}
	env := jinja.New(opts)
	env.SetLoader(jinja.NewDirLoader(filepath.Dir(tplPath), delimitersOf(opts)))
	env.SetListener(&slogListener{log: logger})

	bridge := adapter.New(adapter.NewSQLiteAdapter(":memory:"))
	if err := env.RegisterAdapter(bridge); err != nil {
		return nil, "", err
	}
	return env, filepath.Base(tplPath), nil
}

func handleRender(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	tplPath := args[0]
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	env, name, err := newEnvironment(tplPath, flagValue(args, "-config"), logger)
	if err != nil {
		fail(err)
	}
	ctx, err := loadContext(flagValue(args, "-context"))
	if err != nil {
		fail(err)
	}

	tpl, err := env.Get(name)
	if err != nil {
		fail(err)
	}
	out, err := tpl.Render(ctx)
	if err != nil {
		fail(err)
	}
	fmt.Print(out)
}

func handleCheck(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	tplPath := args[0]
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	env, name, err := newEnvironment(tplPath, flagValue(args, "-config"), logger)
	if err != nil {
		fail(err)
	}
	tpl, err := env.Get(name)
	if err != nil {
		fail(err)
	}

	diags := tpl.CheckTypes()
	if len(diags) == 0 {
		fmt.Println(colorize("32", "no type errors"))
		return
	}
	for _, d := range diags {
		where := d.Macro
		if where == "" {
			where = "<template>"
		}
		fmt.Fprintf(os.Stderr, "%s %s:%d in %s: %s\n",
			colorize("31", "error:"), tplPath, d.Span.Start.Line, where, d.Message)
	}
	os.Exit(1)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, colorize("31", err.Error()))
	os.Exit(1)
}
