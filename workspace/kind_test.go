package workspace

import "testing"

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		err  bool
	}{
		{"html", KindMarkup, false},
		{"CSS", KindStyle, false},
		{"js", KindScript, false},
		{"javascript", KindScript, false},
		{"py", KindPython, false},
		{"", KindText, false},
		{"cobol", KindText, true},
	}

	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseKind(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
}

func TestKindForName(t *testing.T) {
	tests := map[string]Kind{
		"index.html": KindMarkup,
		"a/b/c.CSS":  KindStyle,
		"script.js":  KindScript,
		"example.py": KindPython,
		"README.md":  KindText,
		"Makefile":   KindText,
	}
	for name, want := range tests {
		if got := KindForName(name); got != want {
			t.Errorf("KindForName(%q) = %v, want %v", name, got, want)
		}
	}
}
