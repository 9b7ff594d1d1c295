// Package builtins implements the default filter/test/function set every
// Environment registers unless the host overrides it.
package builtins

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jinjacore/dbtjinja/internal/argparser"
	"github.com/jinjacore/dbtjinja/internal/value"
	"github.com/jinjacore/dbtjinja/internal/vm"
)

// Filters is the default `| name(...)` pipeline-stage registry.
var Filters = map[string]vm.FilterFunc{
	"default":    filterDefault,
	"upper":      filterUpper,
	"lower":      filterLower,
	"trim":       filterTrim,
	"capitalize": filterCapitalize,
	"title":      filterTitle,
	"length":     filterLength,
	"count":      filterLength,
	"join":       filterJoin,
	"replace":    filterReplace,
	"round":      filterRound,
	"abs":        filterAbs,
	"int":        filterInt,
	"float":      filterFloat,
	"string":     filterString,
	"list":       filterList,
	"first":      filterFirst,
	"last":       filterLast,
	"reverse":    filterReverse,
	"sort":       filterSort,
	"unique":     filterUnique,
	"sum":        filterSum,
	"truncate":   filterTruncate,
	"wordcount":  filterWordcount,
	"tojson":     filterTojson,
}

func textOf(v value.Value) string {
	switch {
	case v.IsNone(), v.IsUndefined():
		return ""
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsInt():
		return strconv.FormatInt(v.AsInt(), 10)
	case v.IsFloat():
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case v.IsObj():
		if v.AsObject() == nil {
			return ""
		}
		text, _ := v.AsObject().Render()
		return text
	}
	return ""
}

func items(v value.Value) ([]value.Value, bool) {
	if !v.IsObj() {
		return nil, false
	}
	if l, ok := v.AsObject().(*value.List); ok {
		return l.Items(), true
	}
	return nil, false
}

func filterDefault(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("default", args, kwargs)
	other := p.NextArgOptional("default_value", value.Obj(value.NewString("")))
	useDefaultFlag := p.NextArgOptional("boolean", value.Bool(false))
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	useDefault := target.IsUndefined()
	if useDefaultFlag.Truthy() {
		useDefault = target.IsUndefined() || !target.Truthy()
	}
	if useDefault {
		return other, nil
	}
	return target, nil
}

func filterUpper(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return value.Obj(value.NewString(strings.ToUpper(textOf(target)))), nil
}

func filterLower(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return value.Obj(value.NewString(strings.ToLower(textOf(target)))), nil
}

func filterTrim(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("trim", args, kwargs)
	cutset := p.NextArgOptional("chars", value.Undefined())
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	if cutset.IsUndefined() {
		return value.Obj(value.NewString(strings.TrimSpace(textOf(target)))), nil
	}
	return value.Obj(value.NewString(strings.Trim(textOf(target), textOf(cutset)))), nil
}

func filterCapitalize(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	s := textOf(target)
	if s == "" {
		return value.Obj(value.NewString(s)), nil
	}
	return value.Obj(value.NewString(strings.ToUpper(s[:1]) + strings.ToLower(s[1:]))), nil
}

func filterTitle(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return value.Obj(value.NewString(strings.Title(strings.ToLower(textOf(target))))), nil
}

func filterLength(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if !target.IsObj() {
		return value.Undefined(), fmt.Errorf("length: value has no length")
	}
	switch o := target.AsObject().(type) {
	case *value.String:
		return value.Int(int64(len([]rune(o.Go())))), nil
	case *value.List:
		return value.Int(int64(o.Len())), nil
	case *value.Map:
		return value.Int(int64(o.Len())), nil
	case *value.Bytes:
		return value.Int(int64(len(o.B))), nil
	}
	return value.Undefined(), fmt.Errorf("length: value has no length")
}

func filterJoin(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("join", args, kwargs)
	sep := p.NextArgOptional("d", value.Obj(value.NewString("")))
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	elems, ok := items(target)
	if !ok {
		return value.Undefined(), fmt.Errorf("join: value is not a sequence")
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = textOf(e)
	}
	return value.Obj(value.NewString(strings.Join(parts, textOf(sep)))), nil
}

func filterReplace(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("replace", args, kwargs)
	old, err := p.NextArg("old")
	if err != nil {
		return value.Undefined(), err
	}
	new_, err := p.NextArg("new")
	if err != nil {
		return value.Undefined(), err
	}
	count := p.NextArgOptional("count", value.Int(-1))
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	n := -1
	if count.IsInt() {
		n = int(count.AsInt())
	}
	return value.Obj(value.NewString(strings.Replace(textOf(target), textOf(old), textOf(new_), n))), nil
}

func filterRound(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("round", args, kwargs)
	prec := p.NextArgOptional("precision", value.Int(0))
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	f := toFloat(target)
	mul := 1.0
	for i := int64(0); i < prec.AsInt(); i++ {
		mul *= 10
	}
	rounded := float64(int64(f*mul+sign(f)*0.5)) / mul
	return value.Float(rounded), nil
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func filterAbs(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if target.IsInt() {
		n := target.AsInt()
		if n < 0 {
			n = -n
		}
		return value.Int(n), nil
	}
	f := toFloat(target)
	if f < 0 {
		f = -f
	}
	return value.Float(f), nil
}

func toFloat(v value.Value) float64 {
	switch {
	case v.IsInt():
		return float64(v.AsInt())
	case v.IsFloat():
		return v.AsFloat()
	case v.IsObj():
		if s, ok := v.AsObject().(*value.String); ok {
			f, _ := strconv.ParseFloat(s.Go(), 64)
			return f
		}
	}
	return 0
}

func filterInt(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("int", args, kwargs)
	def := p.NextArgOptional("default", value.Int(0))
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	switch {
	case target.IsInt():
		return target, nil
	case target.IsFloat():
		return value.Int(int64(target.AsFloat())), nil
	case target.IsObj():
		if s, ok := target.AsObject().(*value.String); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s.Go()), 10, 64)
			if err != nil {
				return def, nil
			}
			return value.Int(n), nil
		}
	}
	return def, nil
}

func filterFloat(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("float", args, kwargs)
	def := p.NextArgOptional("default", value.Float(0))
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	switch {
	case target.IsFloat():
		return target, nil
	case target.IsInt():
		return value.Float(float64(target.AsInt())), nil
	case target.IsObj():
		if s, ok := target.AsObject().(*value.String); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s.Go()), 64)
			if err != nil {
				return def, nil
			}
			return value.Float(f), nil
		}
	}
	return def, nil
}

func filterString(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return value.Obj(value.NewString(textOf(target))), nil
}

func filterList(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if elems, ok := items(target); ok {
		return value.Obj(value.NewList(append([]value.Value(nil), elems...))), nil
	}
	if target.IsObj() {
		if s, ok := target.AsObject().(*value.String); ok {
			runes := []rune(s.Go())
			out := make([]value.Value, len(runes))
			for i, r := range runes {
				out[i] = value.Obj(value.NewString(string(r)))
			}
			return value.Obj(value.NewList(out)), nil
		}
		if m, ok := target.AsObject().(*value.Map); ok {
			entries := m.Entries()
			out := make([]value.Value, len(entries))
			for i, e := range entries {
				out[i] = e.Key
			}
			return value.Obj(value.NewList(out)), nil
		}
	}
	return value.Undefined(), fmt.Errorf("list: value is not iterable")
}

func filterFirst(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	elems, ok := items(target)
	if !ok || len(elems) == 0 {
		return value.Undefined(), nil
	}
	return elems[0], nil
}

func filterLast(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	elems, ok := items(target)
	if !ok || len(elems) == 0 {
		return value.Undefined(), nil
	}
	return elems[len(elems)-1], nil
}

func filterReverse(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	elems, ok := items(target)
	if !ok {
		if target.IsObj() {
			if s, ok := target.AsObject().(*value.String); ok {
				r := []rune(s.Go())
				for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
					r[i], r[j] = r[j], r[i]
				}
				return value.Obj(value.NewString(string(r))), nil
			}
		}
		return value.Undefined(), fmt.Errorf("reverse: value is not a sequence")
	}
	out := make([]value.Value, len(elems))
	for i, e := range elems {
		out[len(elems)-1-i] = e
	}
	return value.Obj(value.NewList(out)), nil
}

func filterSort(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("sort", args, kwargs)
	reverse := p.NextArgOptional("reverse", value.Bool(false))
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	elems, ok := items(target)
	if !ok {
		return value.Undefined(), fmt.Errorf("sort: value is not a sequence")
	}
	out := append([]value.Value(nil), elems...)
	sort.SliceStable(out, func(i, j int) bool {
		c := value.Compare(out[i], out[j])
		if reverse.Truthy() {
			return c > 0
		}
		return c < 0
	})
	return value.Obj(value.NewList(out)), nil
}

func filterUnique(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	elems, ok := items(target)
	if !ok {
		return value.Undefined(), fmt.Errorf("unique: value is not a sequence")
	}
	var out []value.Value
	for _, e := range elems {
		dup := false
		for _, o := range out {
			if value.Equal(e, o) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	return value.Obj(value.NewList(out)), nil
}

func filterSum(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("sum", args, kwargs)
	start := p.NextArgOptional("start", value.Int(0))
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	elems, ok := items(target)
	if !ok {
		return value.Undefined(), fmt.Errorf("sum: value is not a sequence")
	}
	isFloat := start.IsFloat()
	var fsum float64
	var isum int64
	if isFloat {
		fsum = start.AsFloat()
	} else {
		isum = start.AsInt()
	}
	for _, e := range elems {
		if e.IsFloat() {
			isFloat = true
		}
	}
	if isFloat {
		if !start.IsFloat() {
			fsum = float64(isum)
		}
		for _, e := range elems {
			fsum += toFloat(e)
		}
		return value.Float(fsum), nil
	}
	for _, e := range elems {
		isum += e.AsInt()
	}
	return value.Int(isum), nil
}

func filterTruncate(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("truncate", args, kwargs)
	length := p.NextArgOptional("length", value.Int(255))
	end := p.NextArgOptional("end", value.Obj(value.NewString("...")))
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	s := textOf(target)
	n := int(length.AsInt())
	if len([]rune(s)) <= n {
		return value.Obj(value.NewString(s)), nil
	}
	r := []rune(s)
	suffix := textOf(end)
	cut := n - len([]rune(suffix))
	if cut < 0 {
		cut = 0
	}
	return value.Obj(value.NewString(string(r[:cut]) + suffix)), nil
}

func filterWordcount(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return value.Int(int64(len(strings.Fields(textOf(target))))), nil
}

func filterTojson(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	goVal, err := toJSONable(target)
	if err != nil {
		return value.Undefined(), err
	}
	b, err := json.Marshal(goVal)
	if err != nil {
		return value.Undefined(), err
	}
	return value.MarkSafe(value.Obj(value.NewString(string(b)))), nil
}

func toJSONable(v value.Value) (interface{}, error) {
	switch {
	case v.IsNone(), v.IsUndefined():
		return nil, nil
	case v.IsBool():
		return v.AsBool(), nil
	case v.IsInt():
		return v.AsInt(), nil
	case v.IsFloat():
		return v.AsFloat(), nil
	case v.IsObj():
		switch o := v.AsObject().(type) {
		case *value.String:
			return o.Go(), nil
		case *value.List:
			out := make([]interface{}, 0, o.Len())
			for _, it := range o.Items() {
				g, err := toJSONable(it)
				if err != nil {
					return nil, err
				}
				out = append(out, g)
			}
			return out, nil
		case *value.Map:
			out := make(map[string]interface{}, o.Len())
			for _, e := range o.Entries() {
				k, ok := e.Key.AsObject().(*value.String)
				if !ok {
					continue
				}
				g, err := toJSONable(e.Val)
				if err != nil {
					return nil, err
				}
				out[k.Go()] = g
			}
			return out, nil
		}
	}
	return textOf(v), nil
}
