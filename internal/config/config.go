// Package config holds compiler constants and host-supplied environment
// options.
package config

import (
	"gopkg.in/yaml.v3"
)

// Compiler constants bounding recursion depth.
const (
	MaxParserRecursionDepth = 100
	MaxMacroCallDepth       = 500
	MaxIncludeDepth         = 100
	MaxContextFrameDepth    = 2000
)

// UndefinedBehavior controls how Lookup treats a missing name.
type UndefinedBehavior uint8

const (
	Lenient UndefinedBehavior = iota
	Chainable
	Strict
	SemiStrict
)

// AutoEscapeMode is the default auto-escape policy for new templates;
// `{% autoescape %}` can still override it per template.
type AutoEscapeMode string

const (
	AutoEscapeNone AutoEscapeMode = "none"
	AutoEscapeHTML AutoEscapeMode = "html"
	AutoEscapeJSON AutoEscapeMode = "json"
)

// Options is the host-supplied environment configuration, loadable from a
// project config file via YAML.
type Options struct {
	BlockBegin   string `yaml:"block_begin"`
	BlockEnd     string `yaml:"block_end"`
	VarBegin     string `yaml:"var_begin"`
	VarEnd       string `yaml:"var_end"`
	CommentBegin string `yaml:"comment_begin"`
	CommentEnd   string `yaml:"comment_end"`

	LstripBlocks bool `yaml:"lstrip_blocks"`
	TrimBlocks   bool `yaml:"trim_blocks"`

	Undefined   string `yaml:"undefined"`   // "lenient"|"chainable"|"strict"|"semi_strict"
	AutoEscape  string `yaml:"auto_escape"` // "none"|"html"|"json"
	FuelLimit   int64  `yaml:"fuel_limit"`  // 0 disables the fuel tracker
}

// Default returns Jinja-compatible defaults.
func Default() Options {
	return Options{
		BlockBegin: "{%", BlockEnd: "%}",
		VarBegin: "{{", VarEnd: "}}",
		CommentBegin: "{#", CommentEnd: "#}",
		Undefined:  "lenient",
		AutoEscape: "none",
	}
}

// Load parses YAML project configuration into Options, overlaying onto the
// defaults so a partial document is valid.
func Load(data []byte) (Options, error) {
	opts := Default()
	if len(data) == 0 {
		return opts, nil
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (o Options) UndefinedBehavior() UndefinedBehavior {
	switch o.Undefined {
	case "chainable":
		return Chainable
	case "strict":
		return Strict
	case "semi_strict":
		return SemiStrict
	default:
		return Lenient
	}
}

func (o Options) AutoEscapeModeDefault() AutoEscapeMode {
	switch o.AutoEscape {
	case "html":
		return AutoEscapeHTML
	case "json":
		return AutoEscapeJSON
	default:
		return AutoEscapeNone
	}
}
