package preview

import (
	"strings"
	"testing"
)

func TestComposeDeterministic(t *testing.T) {
	a := Compose("<p>hi</p>", "", "console.log(1)")
	b := Compose("<p>hi</p>", "", "console.log(1)")
	if a != b {
		t.Error("identical inputs produced different documents")
	}
	if Compose("<p>hi</p>", "", "console.log(2)") == a {
		t.Error("different script produced the same document")
	}
}

func TestComposeLayout(t *testing.T) {
	doc := string(Compose("<p>hi</p>", "p { color: red }", "console.log(1)"))

	checks := []string{
		"<!DOCTYPE html>",
		`http-equiv="Content-Security-Policy"`,
		"default-src &#39;none&#39;",
		"<style>\np { color: red }\n</style>",
		"<body>\n<p>hi</p>",
		"<script>\nconsole.log(1)\n</script>",
	}
	for _, check := range checks {
		if !strings.Contains(doc, check) {
			t.Errorf("document missing %q:\n%s", check, doc)
		}
	}

	if strings.Index(doc, "<style>") > strings.Index(doc, "<body>") {
		t.Error("style must be in head")
	}
}

func TestComposeCannotBreakOut(t *testing.T) {
	doc := string(Compose("", "</STYLE><b>x</b>", "x = '</Script><img>'"))

	if strings.Count(doc, "</style>") != 1 {
		t.Errorf("style terminated early:\n%s", doc)
	}
	if strings.Count(strings.ToLower(doc), "</script>") != 1 {
		t.Errorf("script terminated early:\n%s", doc)
	}
}

func TestFrameSandbox(t *testing.T) {
	frame := Compose(`<a href="x">"q"</a>`, "", "").Frame()

	if !strings.Contains(frame, `sandbox="allow-scripts"`) {
		t.Errorf("frame missing sandbox: %s", frame)
	}
	if strings.Contains(frame, "allow-same-origin") {
		t.Error("frame must not share the host origin")
	}
	if strings.Contains(frame, `href="x"`) {
		t.Error("srcdoc not escaped")
	}
}

func TestETagStable(t *testing.T) {
	a := Compose("a", "b", "c")
	if a.ETag() != Compose("a", "b", "c").ETag() {
		t.Error("etag not stable")
	}
	if a.ETag() == Compose("a", "b", "d").ETag() {
		t.Error("etag collision")
	}
}
