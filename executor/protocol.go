package executor

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

// Frame constants - written to stderr by the language helpers.
// Format: \x00PAD_<BODY>\x00 where BODY is READY, DONE, ERROR:<msg> or VALUE:<text>.
const (
	frameMarker      = "\x00PAD_"
	frameTerminator  = "\x00"
	frameReady       = "READY"
	frameDone        = "DONE"
	frameErrorPrefix = "ERROR:"
	frameValuePrefix = "VALUE:"
)

// outcome is the settled state of one execution as reported by the guest.
type outcome struct {
	value string
	err   error
}

// frameParser intercepts stderr and turns frames into execution events.
// Bytes outside frames pass through as regular stderr output.
type frameParser struct {
	buf        bytes.Buffer
	realStderr bytes.Buffer

	value    string
	settled  bool
	readyCh  chan struct{}
	ready    bool
	doneCh   chan outcome
	lastDone outcome

	mu sync.Mutex
}

func newFrameParser() *frameParser {
	return &frameParser{
		readyCh: make(chan struct{}),
		doneCh:  make(chan outcome, 1),
	}
}

func (p *frameParser) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	for p.next() {
	}
	return len(data), nil
}

// next consumes at most one frame from the buffer. It reports whether a
// frame was consumed so the caller can keep draining.
func (p *frameParser) next() bool {
	content := p.buf.String()

	idx := strings.Index(content, frameMarker)
	if idx == -1 {
		keep := partialSuffix(content, frameMarker)
		p.realStderr.WriteString(content[:len(content)-keep])
		p.reset(content[len(content)-keep:])
		return false
	}

	p.realStderr.WriteString(content[:idx])
	rest := content[idx+len(frameMarker):]
	end := strings.Index(rest, frameTerminator)
	if end == -1 {
		p.reset(content[idx:])
		return false
	}

	p.reset(rest[end+1:])
	p.handle(rest[:end])
	return true
}

func (p *frameParser) reset(remaining string) {
	p.buf.Reset()
	p.buf.WriteString(remaining)
}

func (p *frameParser) handle(body string) {
	switch {
	case body == frameReady:
		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}
	case body == frameDone:
		p.settle(outcome{value: p.value})
	case strings.HasPrefix(body, frameErrorPrefix):
		p.settle(outcome{err: errors.New(strings.TrimPrefix(body, frameErrorPrefix))})
	case strings.HasPrefix(body, frameValuePrefix):
		p.value = strings.TrimPrefix(body, frameValuePrefix)
	default:
		p.realStderr.WriteString(body)
	}
}

func (p *frameParser) settle(o outcome) {
	p.settled = true
	p.lastDone = o
	select {
	case p.doneCh <- o:
	default:
	}
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of marker, so split frames survive across writes.
func partialSuffix(s, marker string) int {
	limit := len(marker) - 1
	if limit > len(s) {
		limit = len(s)
	}
	for n := limit; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}

func (p *frameParser) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *frameParser) Done() <-chan outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneCh
}

// ResetExec prepares the parser for the next command in session mode.
func (p *frameParser) ResetExec() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.doneCh = make(chan outcome, 1)
	p.value = ""
	p.settled = false
	p.lastDone = outcome{}
	p.realStderr.Reset()
}

// Outcome reports the settled result of a one-shot run, if the guest sent one.
func (p *frameParser) Outcome() (outcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDone, p.settled
}

func (p *frameParser) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}
