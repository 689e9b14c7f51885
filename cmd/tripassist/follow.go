package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fentz26/tripassist/internal/apperr"
	"github.com/fentz26/tripassist/internal/client"
	"github.com/fentz26/tripassist/internal/models"
	"github.com/fentz26/tripassist/internal/tui"
)

// Follow modes for commands that wait on a session.
const (
	followStream = "stream"
	followPoll   = "poll"
	followNone   = "none"
)

func waitFunc(c *client.Client, id, mode string, progress io.Writer) (tui.WaitFunc, error) {
	switch mode {
	case followStream:
		return func(ctx context.Context) (models.Result, error) {
			return c.Stream(ctx, id)
		}, nil
	case followPoll:
		return func(ctx context.Context) (models.Result, error) {
			return c.Poll(ctx, id, func(attempt int, r models.Result, err error) {
				if progress == nil {
					return
				}
				if err != nil {
					fmt.Fprintf(progress, "  attempt %d: %v\n", attempt, err)
					return
				}
				fmt.Fprintf(progress, "  attempt %d: %s\n", attempt, r.Status)
			})
		}, nil
	}
	return nil, fmt.Errorf("unknown follow mode %q (want %s, %s or %s)", mode, followStream, followPoll, followNone)
}

// follow waits for the session's result and prints it.
func follow(ctx context.Context, out io.Writer, c *client.Client, id, mode string, useTUI, asJSON bool) error {
	var progress io.Writer
	if !useTUI && !asJSON {
		progress = out
	}
	wait, err := waitFunc(c, id, mode, progress)
	if err != nil {
		return err
	}

	if useTUI {
		_, err := tui.New(id, wait).Run(ctx)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(out, "Stopped waiting. Resume with: tripassist watch %s\n", id)
			return nil
		}
		return describe(err)
	}

	if !asJSON {
		fmt.Fprintf(out, "Waiting for session %s (%s)...\n", id, mode)
	}
	r, err := wait(ctx)
	if r.Status != "" {
		if perr := printResult(out, r, asJSON); perr != nil {
			return perr
		}
	}
	return describe(err)
}

func printResult(out io.Writer, r models.Result, asJSON bool) error {
	if asJSON {
		return printJSON(out, r)
	}
	fmt.Fprintln(out, tui.RenderResult(r))
	return nil
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}

// describe expands a coded error's details into its message.
func describe(err error) error {
	var coded *apperr.Error
	if !errors.As(err, &coded) || len(coded.Details) == 0 {
		return err
	}
	if _, ok := coded.Details["violations"]; ok {
		// The message already lists every violation.
		return err
	}

	keys := make([]string, 0, len(coded.Details))
	for k := range coded.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(coded.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %v", k, coded.Details[k])
	}
	return fmt.Errorf("%s: %s", coded.Code, b.String())
}
