package jinja

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jinjacore/dbtjinja/internal/codegen"
	"github.com/jinjacore/dbtjinja/internal/lexer"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/parser"
)

// compileSource parses and compiles one template's source, shared by every
// loader and by Environment.FromString.
func compileSource(name, src string, delim lexer.Delimiters) (*opcode.Program, error) {
	tpl, err := parser.Parse(src, name, delim)
	if err != nil {
		return nil, err
	}
	return codegen.Compile(tpl, name, src)
}

// MapLoader resolves template names against an in-memory source map, for
// embedding hosts that keep templates alongside their own assets rather
// than on disk.
type MapLoader struct {
	Sources map[string]string
	delim   lexer.Delimiters
	cache   map[string]*opcode.Program
}

func NewMapLoader(sources map[string]string, delim lexer.Delimiters) *MapLoader {
	return &MapLoader{Sources: sources, delim: delim, cache: make(map[string]*opcode.Program)}
}

func (l *MapLoader) Load(name string) (*opcode.Program, error) {
	if p, ok := l.cache[name]; ok {
		return p, nil
	}
	src, ok := l.Sources[name]
	if !ok {
		return nil, fmt.Errorf("jinja: template %q not found", name)
	}
	prog, err := compileSource(name, src, l.delim)
	if err != nil {
		return nil, err
	}
	l.cache[name] = prog
	return prog, nil
}

// DirLoader resolves template names as paths relative to Root, reading and
// compiling from disk on first use.
type DirLoader struct {
	Root  string
	delim lexer.Delimiters
	cache map[string]*opcode.Program
}

func NewDirLoader(root string, delim lexer.Delimiters) *DirLoader {
	return &DirLoader{Root: root, delim: delim, cache: make(map[string]*opcode.Program)}
}

func (l *DirLoader) Load(name string) (*opcode.Program, error) {
	if p, ok := l.cache[name]; ok {
		return p, nil
	}
	path := filepath.Join(l.Root, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jinja: %w", err)
	}
	prog, err := compileSource(name, string(data), l.delim)
	if err != nil {
		return nil, err
	}
	l.cache[name] = prog
	return prog, nil
}
