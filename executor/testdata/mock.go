//go:build wasip1

// Mock interpreter for testing executor logic without real Python/JS.
// Build with: GOOS=wasip1 GOARCH=wasm go build -o mock.wasm mock.go
//
// Commands:
//
//	set k=v     store a global
//	get k       report a global as the value
//	fail msg    report an error
//	sleep ms    sleep, then report "slept"
//	spin        loop forever
//	stderr msg  write msg to stderr outside any frame
//	exit n      exit with status n
//	anything    print it and report it as the value
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var globals = map[string]string{}

func frame(body string) {
	fmt.Fprint(os.Stderr, "\x00PAD_"+body+"\x00")
}

func run(code string) {
	verb, arg, _ := strings.Cut(code, " ")
	switch verb {
	case "set":
		k, v, _ := strings.Cut(arg, "=")
		globals[k] = v
	case "get":
		v, ok := globals[arg]
		if !ok {
			frame("ERROR:undefined: " + arg)
			return
		}
		frame("VALUE:" + v)
	case "fail":
		frame("ERROR:" + arg)
		return
	case "sleep":
		ms, _ := strconv.Atoi(arg)
		time.Sleep(time.Duration(ms) * time.Millisecond)
		frame("VALUE:slept")
	case "spin":
		for {
		}
	case "stderr":
		fmt.Fprint(os.Stderr, arg)
	case "exit":
		n, _ := strconv.Atoi(arg)
		os.Exit(n)
	default:
		fmt.Println(code)
		frame("VALUE:" + code)
	}
	frame("DONE")
}

func main() {
	// One-shot mode: run the argument and exit. Sessions pass an empty
	// argument unless the language's init code says otherwise.
	code := ""
	if len(os.Args) > 1 {
		code = os.Args[1]
	}
	if os.Getenv("PAD_SESSION") == "" || code != "" {
		run(code)
		return
	}

	frame("READY")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var cmd struct {
			Type string `json:"type"`
			Code string `json:"code"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}

		if cmd.Type == "exit" {
			break
		}

		if cmd.Type == "exec" {
			run(cmd.Code)
		}
	}
}
