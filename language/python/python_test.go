package python

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caffeineduck/scratchpad/language"
)

func TestStdlibContents(t *testing.T) {
	checks := []string{
		"_pad_main",
		"_pad_exec",
		"\\x00PAD_",
		"READY",
		"VALUE:",
		"ERROR:",
	}
	for _, check := range checks {
		if !strings.Contains(stdlib, check) {
			t.Errorf("stdlib missing %q", check)
		}
	}
}

func TestSessionInit(t *testing.T) {
	if !strings.Contains(New(language.Source{}).SessionInit(), "_PAD_SESSION") {
		t.Error("SessionInit missing session flag")
	}
}

func TestWrapCodeQuotes(t *testing.T) {
	code := "print(\"hi\")\nx = '\\n'"
	wrapped := New(language.Source{}).WrapCode(code)

	if !strings.HasPrefix(wrapped, stdlib) {
		t.Error("WrapCode should start with the helpers")
	}
	want := `_pad_main("print(\"hi\")\nx = '\\n'")`
	if !strings.Contains(wrapped, want) {
		t.Errorf("wrapped code missing quoted call %s", want)
	}
}

func TestArgs(t *testing.T) {
	args := New(language.Source{}).Args("code")
	if len(args) != 3 || args[0] != "python" || args[1] != "-c" || args[2] != "code" {
		t.Errorf("Args = %q", args)
	}
}

func TestModuleFromSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "python.wasm")
	os.WriteFile(path, []byte("bin"), 0o644)

	data, err := New(language.Source{Path: path}).Module(context.Background())
	if err != nil {
		t.Fatalf("Module: %v", err)
	}
	if string(data) != "bin" {
		t.Errorf("Module = %q", data)
	}
}
