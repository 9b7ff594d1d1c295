package jinja

import (
	"fmt"
	"reflect"

	"github.com/jinjacore/dbtjinja/internal/value"
)

// ToValue converts a Go value into the engine's internal tagged-union
// Value representation.
func ToValue(v interface{}) (value.Value, error) {
	if v == nil {
		return value.None(), nil
	}
	if vv, ok := v.(value.Value); ok {
		return vv, nil
	}
	if ho, ok := v.(*value.HostObject); ok {
		return value.Obj(ho), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Interface || rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return value.None(), nil
		}
	}

	switch x := v.(type) {
	case string:
		return value.Obj(value.NewString(x)), nil
	case bool:
		return value.Bool(x), nil
	case int:
		return value.Int(int64(x)), nil
	case int32:
		return value.Int(int64(x)), nil
	case int64:
		return value.Int(x), nil
	case float32:
		return value.Float(float64(x)), nil
	case float64:
		return value.Float(x), nil
	case []byte:
		return value.Obj(&value.Bytes{B: x}), nil
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]value.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := ToValue(rv.Index(i).Interface())
			if err != nil {
				return value.Undefined(), err
			}
			items[i] = item
		}
		return value.Obj(value.NewList(items)), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return value.Undefined(), fmt.Errorf("jinja: unsupported map key type %s", rv.Type().Key())
		}
		m := value.NewMap()
		iter := rv.MapRange()
		for iter.Next() {
			val, err := ToValue(iter.Value().Interface())
			if err != nil {
				return value.Undefined(), err
			}
			m.Set(value.Obj(value.NewString(iter.Key().String())), val)
		}
		return value.Obj(m), nil
	case reflect.Struct:
		attrs := make(map[string]value.Value, rv.NumField())
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}
			val, err := ToValue(rv.Field(i).Interface())
			if err != nil {
				return value.Undefined(), err
			}
			attrs[f.Name] = val
		}
		return value.Obj(&value.HostObject{TypeName: "struct", Data: v, Attrs: attrs}), nil
	case reflect.Ptr:
		return ToValue(rv.Elem().Interface())
	}

	return value.Obj(&value.HostObject{TypeName: "go_value", Data: v}), nil
}

// FromValue converts an internal Value back to a plain Go value (string,
// bool, int64, float64, []interface{}, map[string]interface{}, or nil),
// the shape a host typically wants back from Template.Render's context
// round-trip or a function registered with RegisterFunction.
func FromValue(v value.Value) (interface{}, error) {
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
		return fromObject(v.AsObject())
	}
	return nil, fmt.Errorf("jinja: unsupported value kind %v", v.Kind())
}

func fromObject(o value.Object) (interface{}, error) {
	if o == nil {
		return nil, nil
	}
	switch obj := o.(type) {
	case *value.String:
		return obj.Go(), nil
	case *value.Bytes:
		return obj.B, nil
	case *value.List:
		items := obj.Items()
		out := make([]interface{}, len(items))
		for i, it := range items {
			v, err := FromValue(it)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *value.Map:
		out := make(map[string]interface{}, obj.Len())
		for _, e := range obj.Entries() {
			k, err := FromValue(e.Key)
			if err != nil {
				return nil, err
			}
			ks, ok := k.(string)
			if !ok {
				continue
			}
			v, err := FromValue(e.Val)
			if err != nil {
				return nil, err
			}
			out[ks] = v
		}
		return out, nil
	case *value.HostObject:
		return obj.Data, nil
	}
	text, _ := o.Render()
	return text, nil
}

// kwargsFromMap builds a Kwargs bundle from a plain Go map of named
// arguments. Nothing in this package calls it.
func kwargsFromMap(m map[string]interface{}) (*value.Kwargs, error) {
	kw := value.NewKwargs()
	for k, v := range m {
		vv, err := ToValue(v)
		if err != nil {
			return nil, err
		}
		kw.Set(value.Obj(value.NewString(k)), vv)
	}
	return kw, nil
}
