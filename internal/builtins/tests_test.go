package builtins

import (
	"testing"

	"github.com/jinjacore/dbtjinja/internal/value"
)

func TestTestDefinedUndefined(t *testing.T) {
	ok, err := Tests["defined"](value.Int(1), nil)
	if err != nil || !ok {
		t.Fatalf("expected defined(1) == true, got %v (err=%v)", ok, err)
	}
	ok, err = Tests["defined"](value.Undefined(), nil)
	if err != nil || ok {
		t.Fatalf("expected defined(undefined) == false, got %v (err=%v)", ok, err)
	}
	ok, _ = Tests["undefined"](value.Undefined(), nil)
	if !ok {
		t.Fatalf("expected undefined(undefined) == true")
	}
}

func TestTestStringNumber(t *testing.T) {
	ok, _ := Tests["string"](strv("x"), nil)
	if !ok {
		t.Fatalf("expected string(\"x\") == true")
	}
	ok, _ = Tests["string"](value.Int(1), nil)
	if ok {
		t.Fatalf("expected string(1) == false")
	}
	ok, _ = Tests["number"](value.Float(1.5), nil)
	if !ok {
		t.Fatalf("expected number(1.5) == true")
	}
}

func TestTestOddEven(t *testing.T) {
	ok, _ := Tests["odd"](value.Int(3), nil)
	if !ok {
		t.Fatalf("expected odd(3) == true")
	}
	ok, _ = Tests["even"](value.Int(3), nil)
	if ok {
		t.Fatalf("expected even(3) == false")
	}
}

func TestTestDivisibleBy(t *testing.T) {
	ok, _ := Tests["divisibleby"](value.Int(9), []value.Value{value.Int(3)})
	if !ok {
		t.Fatalf("expected 9 divisibleby 3 == true")
	}
	ok, _ = Tests["divisibleby"](value.Int(9), []value.Value{value.Int(0)})
	if ok {
		t.Fatalf("divisibleby 0 should not report true")
	}
}

func TestTestEqAndEqualto(t *testing.T) {
	ok, _ := Tests["eq"](value.Int(5), []value.Value{value.Int(5)})
	if !ok {
		t.Fatalf("expected eq(5, 5) == true")
	}
	ok, _ = Tests["equalto"](value.Int(5), []value.Value{value.Int(6)})
	if ok {
		t.Fatalf("expected equalto(5, 6) == false")
	}
}

func TestTestIn(t *testing.T) {
	l := value.Obj(value.NewList([]value.Value{value.Int(1), value.Int(2), value.Int(3)}))
	ok, _ := Tests["in"](value.Int(2), []value.Value{l})
	if !ok {
		t.Fatalf("expected 2 in [1,2,3] == true")
	}
	ok, _ = Tests["in"](value.Int(9), []value.Value{l})
	if ok {
		t.Fatalf("expected 9 in [1,2,3] == false")
	}
}

func TestTestLowerUpper(t *testing.T) {
	ok, _ := Tests["lower"](strv("bolt"), nil)
	if !ok {
		t.Fatalf("expected lower(\"bolt\") == true")
	}
	ok, _ = Tests["upper"](strv("BOLT"), nil)
	if !ok {
		t.Fatalf("expected upper(\"BOLT\") == true")
	}
}

func TestTestSequenceMapping(t *testing.T) {
	l := value.Obj(value.NewList([]value.Value{value.Int(1)}))
	ok, _ := Tests["sequence"](l, nil)
	if !ok {
		t.Fatalf("expected sequence([1]) == true")
	}
	m := value.NewMap()
	ok, _ = Tests["mapping"](value.Obj(m), nil)
	if !ok {
		t.Fatalf("expected mapping({}) == true")
	}
	ok, _ = Tests["mapping"](l, nil)
	if ok {
		t.Fatalf("expected mapping([1]) == false")
	}
}
