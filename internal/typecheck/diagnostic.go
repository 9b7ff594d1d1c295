// Package typecheck implements the flow-sensitive worklist type checker
// that runs over TypeCheck-profile bytecode's control-flow graph. Every
// failure is a non-fatal Diagnostic: the checker widens to Any and keeps
// going so one mistake doesn't suppress the rest.
package typecheck

import "github.com/jinjacore/dbtjinja/internal/ast"

// Diagnostic is one checker finding.
type Diagnostic struct {
	Span    ast.Span
	Message string
	// Macro names the enclosing macro this diagnostic was raised in, or ""
	// at template top level.
	Macro string
}
