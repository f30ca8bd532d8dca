// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/lifecycle"
)

// errQuit ends serve when the console user asks to.
var errQuit = errors.New("console quit")

// console is the line-oriented host: each input line is one command call.
// It is also the host handle passed to module hooks, loops and handlers.
type console struct {
	mgr *lifecycle.Manager
	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: in, out: out}
}

// Print writes a line to the console.
func (c *console) Print(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	//nolint:errcheck // console output is best effort
	fmt.Fprintln(c.out, msg)
}

// Run executes lines until ctx is done, the input ends, or the user quits.
// End of input is not an error; serve keeps running until signalled.
func (c *console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.WarnContext(ctx, "console input failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.execute(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (c *console) execute(ctx context.Context, line string) error {
	name, call, ok := parseLine(line)
	if !ok {
		return nil
	}
	if name == "quit" || name == "exit" {
		return errQuit
	}
	call.Host = c

	res, err := c.mgr.CallCommand(ctx, name, call)
	switch {
	case err != nil:
		c.Print(cog.UserMessage(err))
	case !res.OK():
		c.Print(cog.UserMessage(res.Err))
	case res.Value != nil:
		c.Print(formatValue(res.Value))
	}
	return nil
}

// parseLine splits a line into a command name and its call. "--name" sets
// option name to true and "--name=value" sets it to value.
func parseLine(line string) (string, *cog.Call, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return "", nil, false
	}

	call := &cog.Call{}
	for _, f := range fields[1:] {
		opt, isOpt := strings.CutPrefix(f, "--")
		if !isOpt || opt == "" {
			call.Args = append(call.Args, f)
			continue
		}
		if call.Options == nil {
			call.Options = make(map[string]any)
		}
		if key, value, found := strings.Cut(opt, "="); found {
			call.Options[key] = value
		} else {
			call.Options[opt] = true
		}
	}
	return fields[0], call, true
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprint(val)
	}
}
