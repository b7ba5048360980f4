package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/scratchpad/router"
	"github.com/caffeineduck/scratchpad/terminal"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := printer(&buf)

	p(terminal.Event{Session: 1, Active: 1, Line: router.Echo("$ pwd")})
	p(terminal.Event{Session: 1, Active: 1, Line: router.Result("/workspace")})
	p(terminal.Event{Session: 2, Active: 1, Line: router.Result("ran main.py")})

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("printed %q, want echo skipped", buf.String())
	}
	if strings.Contains(lines[0], "[session") || !strings.Contains(lines[0], "/workspace") {
		t.Errorf("active line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "[session 2]") || !strings.Contains(lines[1], "ran main.py") {
		t.Errorf("background line = %q", lines[1])
	}
}

func TestPrinterDuringBackgroundRuns(t *testing.T) {
	st := setupTestStudio(t)
	m := st.Terminal

	var buf bytes.Buffer
	unsubscribe := m.Subscribe(printer(&buf))
	defer unsubscribe()

	ctx := context.Background()
	id := m.Active()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				m.Submit(ctx, id, "run main.py")
				m.Submit(ctx, id, "pwd")
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("terminal deadlocked with a printer subscribed")
	}

	if got := strings.Count(buf.String(), "py: print(1)"); got != 40 {
		t.Errorf("printed %d run results, want 40", got)
	}
}
