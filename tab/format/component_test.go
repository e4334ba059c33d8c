package format

import "testing"

func TestColourise(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":              "",
		"plain":         "plain",
		"&c[Admin] ":    "§c[Admin] ",
		"&l&aGo&r now":  "§l§aGo§r now",
		"a && b":        "a && b",
		"&z not a code": "&z not a code",
		"trailing &":    "trailing &",
	}
	for input, want := range cases {
		if got := Colourise(input); got != want {
			t.Fatalf("Colourise(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestLegacyPlain(t *testing.T) {
	t.Parallel()

	c := Legacy("&c[Admin] &fSteve")
	if c.Text != "§c[Admin] §fSteve" {
		t.Fatalf("Legacy returned %q", c.Text)
	}
	if got, want := c.Plain(), "[Admin] Steve"; got != want {
		t.Fatalf("Plain() = %q, want %q", got, want)
	}
	if c.Zero() {
		t.Fatalf("expected component to be non-zero")
	}
	if !(Component{}).Zero() {
		t.Fatalf("expected zero component to report Zero()")
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a, b := &Component{Text: "x"}, &Component{Text: "x"}
	if !Equal(a, b) {
		t.Fatalf("expected equal components with identical text")
	}
	if Equal(a, &Component{Text: "y"}) {
		t.Fatalf("expected components with different text to differ")
	}
	if Equal(a, nil) || Equal(nil, b) {
		t.Fatalf("expected present and absent components to differ")
	}
	if !Equal(nil, nil) {
		t.Fatalf("expected two absent components to be equal")
	}
}
