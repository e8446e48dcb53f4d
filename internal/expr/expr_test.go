package expr

import "testing"

// helper: parse or fail the test.
func mustParse(t *testing.T, src string) *Expr {
	t.Helper()
	e, err := Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return e
}

// 1. Comparison operators over known variables.
func TestEval_Comparisons(t *testing.T) {
	vars := map[string]float64{"x": 10, "y": 20}

	cases := []struct {
		src  string
		want bool
	}{
		{"x < y", true},
		{"x <= 10", true},
		{"x > y", false},
		{"y >= 20", true},
		{"x == 10", true},
		{"x != 10", false},
		{"x == y", false},
	}
	for _, c := range cases {
		if got := mustParse(t, c.src).Eval(vars); got != c.want {
			t.Errorf("%q = %v, want %v", c.src, got, c.want)
		}
	}
}

// 2. Boolean connectives and parentheses.
func TestEval_Connectives(t *testing.T) {
	vars := map[string]float64{"a": 1, "b": 2}

	cases := []struct {
		src  string
		want bool
	}{
		{"a < 2 and b > 1", true},
		{"a < 2 and b > 5", false},
		{"a > 2 or b > 1", true},
		{"not a > 2", true},
		{"not (a < 2 and b > 1)", false},
		{"(a > 2 or b > 1) and a == 1", true},
		{"true", true},
		{"false or a == 1", true},
	}
	for _, c := range cases {
		if got := mustParse(t, c.src).Eval(vars); got != c.want {
			t.Errorf("%q = %v, want %v", c.src, got, c.want)
		}
	}
}

// 3. Unknown variables fail the containing comparison closed, not open.
func TestEval_UnknownVariableFailsClosed(t *testing.T) {
	vars := map[string]float64{"known": 1}

	cases := []struct {
		src  string
		want bool
	}{
		{"missing < 100", false},
		{"missing > -100", false},
		{"missing == missing", false},
		{"known == 1 or missing < 100", true},
		{"known == 1 and missing < 100", false},
		// not(false comparison) is true: fail-closed applies to the
		// comparison itself, negation is the operator's explicit intent.
		{"not missing < 100", true},
	}
	for _, c := range cases {
		if got := mustParse(t, c.src).Eval(vars); got != c.want {
			t.Errorf("%q = %v, want %v", c.src, got, c.want)
		}
	}
}

// 4. Dotted layer-qualified variable names are single identifiers.
func TestEval_DottedNames(t *testing.T) {
	vars := map[string]float64{"money.runway_days": 25}

	if !mustParse(t, "money.runway_days < 30").Eval(vars) {
		t.Error("expected money.runway_days < 30 to be true")
	}
	if mustParse(t, "money.runway_days < 30").Eval(map[string]float64{}) {
		t.Error("expected unknown dotted name to fail closed")
	}
}

// 5. Malformed syntax is rejected at parse time.
func TestParse_Malformed(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"x <",
		"< 5",
		"x = 5",
		"x ! 5",
		"(x < 5",
		"x < 5)",
		"x < 5 and",
		"and x < 5",
		"x @ 5",
		"f(x) < 5 )",
		"not",
	}
	for _, src := range bad {
		if _, err := Parse(src); err == nil {
			t.Errorf("expected parse error for %q", src)
		}
	}
}

// 6. No function calls or attribute access sneak through as valid syntax.
func TestParse_ClosedGrammar(t *testing.T) {
	// "f(x)" lexes as ident "f" followed by a parenthesized expression with
	// no connective between them, which must not parse.
	if _, err := Parse("f(x)"); err == nil {
		t.Error("expected function-call shape to be rejected")
	}
	if _, err := Parse("x.y(z) > 1"); err == nil {
		t.Error("expected call on dotted name to be rejected")
	}
}

// 7. Bare variables in boolean position: present-and-nonzero is true.
func TestEval_BareVariable(t *testing.T) {
	if !mustParse(t, "flag and x > 0").Eval(map[string]float64{"flag": 1, "x": 3}) {
		t.Error("expected nonzero bare variable to be truthy")
	}
	if mustParse(t, "flag").Eval(map[string]float64{"flag": 0}) {
		t.Error("expected zero bare variable to be false")
	}
	if mustParse(t, "flag").Eval(map[string]float64{}) {
		t.Error("expected missing bare variable to be false")
	}
}
