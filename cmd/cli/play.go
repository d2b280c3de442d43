package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/uiruntime/internal/limiter"
	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/runtime"
	"github.com/and161185/uiruntime/internal/schema"
	"github.com/and161185/uiruntime/internal/service"
	"github.com/and161185/uiruntime/internal/submit"
)

const playHelp = `commands:
  view                      print the current frame
  set <json object>         merge form values (null removes a key)
  do <action json>          dispatch an action
  do {"action":..,"item":..} dispatch an action bound to a list item
  press <popup id> [n]      press button n (default 0) of a popup
  records                   print the record store
  wait                      wait for pending remote submits
  quit
`

// cmdPlay runs a definition locally, reading commands from e.in.
func cmdPlay(e *env, args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	f := fs.String("f", "", "definition file")
	data := fs.String("data", "", "databaseData snapshot file")
	remoteSubmit := fs.Bool("submit", false, "send non-database submits over HTTP")
	timeout := fs.Duration("submit-timeout", 10*time.Second, "remote submit timeout")
	private := fs.Bool("submit-private", false, "allow submits to private and loopback addresses")
	verbose := fs.Bool("v", false, "log runtime warnings to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *f == "-" {
		return errors.New("play reads commands from stdin; pass the definition as a file")
	}
	text, err := e.readInput(*f)
	if err != nil {
		return err
	}
	var seed []byte
	if *data != "" {
		if seed, err = os.ReadFile(*data); err != nil {
			return err
		}
	}
	log := zap.NewNop()
	if *verbose {
		log = zap.Must(zap.NewDevelopment())
	}
	defer func() { _ = log.Sync() }()

	var sub submit.Submitter
	if *remoteSubmit {
		var opts []submit.HTTPOption
		if *private {
			opts = append(opts, submit.WithPrivateNetworks())
		}
		sub = submit.NewHTTP(*timeout, log, opts...)
	}
	rt, err := newPlayer(text, seed, sub, log)
	if err != nil {
		return err
	}
	// e.ctx carries the RPC deadline
	return play(context.Background(), rt, e.in, e.out)
}

// newPlayer validates a definition and starts a runtime seeded with data.
func newPlayer(text, seed []byte, sub submit.Submitter, log *zap.Logger) (*runtime.Runtime, error) {
	app, issues := schema.Validate(text)
	if app == nil {
		return nil, schema.Err(issues)
	}
	snap, err := service.DecodeSnapshot(seed)
	if err != nil {
		return nil, err
	}
	opts := []runtime.Option{
		runtime.WithLogger(log),
		runtime.WithLoginLimiter(limiter.NewMemoryPolicy(limiter.DefaultPolicy), "play"),
	}
	if sub != nil {
		opts = append(opts, runtime.WithSubmitter(sub))
	}
	return runtime.New(app, snap, opts...)
}

var errQuit = errors.New("quit")

// play executes commands line by line. Command errors are reported and the loop goes on.
func play(ctx context.Context, rt *runtime.Runtime, in io.Reader, out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rt.View()); err != nil {
		return err
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "help" {
			fmt.Fprint(out, playHelp)
			continue
		}
		v, err := playLine(ctx, rt, line)
		switch {
		case errors.Is(err, errQuit):
			rt.Wait()
			return nil
		case err != nil:
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if v != nil {
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
	}
	rt.Wait()
	return sc.Err()
}

func playLine(ctx context.Context, rt *runtime.Runtime, line string) (any, error) {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "quit", "exit":
		return nil, errQuit
	case "view":
		return rt.View(), nil
	case "records":
		return rt.Records(), nil
	case "wait":
		rt.Wait()
		return rt.View(), nil

	case "set":
		var partial map[string]any
		if err := json.Unmarshal([]byte(rest), &partial); err != nil {
			return nil, fmt.Errorf("set: %w", err)
		}
		rt.SetFormState(partial)
		return rt.View(), nil

	case "do":
		a, item, err := parseDo(rest)
		if err != nil {
			return nil, err
		}
		rt.Dispatch(ctx, a, runtime.WithItem(item))
		return rt.View(), nil

	case "press":
		id, n, _ := strings.Cut(rest, " ")
		button := 0
		if n = strings.TrimSpace(n); n != "" {
			var err error
			if button, err = strconv.Atoi(n); err != nil {
				return nil, fmt.Errorf("press: bad button %q", n)
			}
		}
		if err := rt.PressPopupButton(ctx, id, button); err != nil {
			return nil, err
		}
		return rt.View(), nil
	}
	return nil, fmt.Errorf("unknown command %q (try help)", cmd)
}

// parseDo accepts a bare action or {"action": .., "item": ..}.
func parseDo(raw string) (model.Action, model.Record, error) {
	var envelope struct {
		Type   *string         `json:"type"`
		Action json.RawMessage `json:"action"`
		Item   model.Record    `json:"item"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, nil, fmt.Errorf("do: %w", err)
	}
	actionJSON := json.RawMessage(raw)
	var item model.Record
	if envelope.Type == nil && len(envelope.Action) > 0 {
		actionJSON, item = envelope.Action, envelope.Item
	}
	a, issues := schema.ParseAction(actionJSON)
	if a == nil {
		if err := schema.Err(issues); err != nil {
			return nil, nil, err
		}
		return nil, nil, errors.New("do: empty action")
	}
	return a, item, nil
}
