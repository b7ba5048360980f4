package workspace

import (
	"fmt"
	"path"
	"strings"
)

// Kind is the declared kind of an artifact. The set is closed; every switch
// over Kind handles all values.
type Kind int

const (
	// KindText is any passive artifact that is neither rendered nor run.
	KindText Kind = iota
	KindMarkup
	KindStyle
	// KindScript runs in-process in an isolated JavaScript context and is
	// also the script input of the preview.
	KindScript
	// KindPython runs on the bridged interpreter.
	KindPython
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{KindText, KindMarkup, KindStyle, KindScript, KindPython}

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMarkup:
		return "markup"
	case KindStyle:
		return "style"
	case KindScript:
		return "script"
	case KindPython:
		return "python"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Language returns the editor language name for k.
func (k Kind) Language() string {
	switch k {
	case KindMarkup:
		return "html"
	case KindStyle:
		return "css"
	case KindScript:
		return "javascript"
	case KindPython:
		return "python"
	default:
		return "plaintext"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts a kind name or a common language alias.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "plaintext", "":
		return KindText, nil
	case "markup", "html":
		return KindMarkup, nil
	case "style", "css":
		return KindStyle, nil
	case "script", "javascript", "js":
		return KindScript, nil
	case "python", "py":
		return KindPython, nil
	default:
		return KindText, fmt.Errorf("unknown kind %q", s)
	}
}

// KindForName infers a kind from a file name's extension.
func KindForName(name string) Kind {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return KindMarkup
	case ".css":
		return KindStyle
	case ".js", ".mjs":
		return KindScript
	case ".py":
		return KindPython
	default:
		return KindText
	}
}
