package router

import "fmt"

// Channel tags an output line.
type Channel int

const (
	ChannelEcho Channel = iota
	ChannelResult
	ChannelError
)

func (c Channel) String() string {
	switch c {
	case ChannelEcho:
		return "echo"
	case ChannelResult:
		return "result"
	case ChannelError:
		return "error"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Channel) UnmarshalText(b []byte) error {
	switch string(b) {
	case "echo":
		*c = ChannelEcho
	case "result":
		*c = ChannelResult
	case "error":
		*c = ChannelError
	default:
		return fmt.Errorf("unknown channel %q", b)
	}
	return nil
}

// OutputLine is one line of run or command output. Once emitted a line is
// never changed.
type OutputLine struct {
	Channel Channel `json:"channel"`
	Text    string  `json:"text"`
}

// Echo returns an echo line.
func Echo(text string) OutputLine { return OutputLine{Channel: ChannelEcho, Text: text} }

// Result returns a result line.
func Result(text string) OutputLine { return OutputLine{Channel: ChannelResult, Text: text} }

// Error returns an error line.
func Error(text string) OutputLine { return OutputLine{Channel: ChannelError, Text: text} }
