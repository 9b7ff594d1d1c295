package vm

import (
	"encoding/json"
	"html"
	"strconv"

	"github.com/jinjacore/dbtjinja/internal/config"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// renderValue produces a value's text form and applies the current
// auto-escape policy, honoring the value's Safe bit.
func (vm *VM) renderValue(v value.Value) string {
	text, safe := textOf(v)
	if safe || vm.curAutoEscape() == config.AutoEscapeNone {
		return text
	}
	switch vm.curAutoEscape() {
	case config.AutoEscapeHTML:
		return html.EscapeString(text)
	case config.AutoEscapeJSON:
		b, err := json.Marshal(text)
		if err != nil {
			return text
		}
		return string(b)
	}
	return text
}

func textOf(v value.Value) (string, bool) {
	switch {
	case v.IsNone(), v.IsUndefined():
		return "", true
	case v.IsBool():
		if v.AsBool() {
			return "true", true
		}
		return "false", true
	case v.IsInt():
		return strconv.FormatInt(v.AsInt(), 10), true
	case v.IsFloat():
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64), true
	case v.IsObj():
		if v.AsObject() == nil {
			return "", true
		}
		return v.AsObject().Render()
	}
	return "", true
}
