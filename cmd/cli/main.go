// Command uirt validates UI application definitions, plays them locally and drives
// remote instances on a uirt-server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"google.golang.org/grpc/status"

	"github.com/and161185/uiruntime/internal/convert"
	grpcserver "github.com/and161185/uiruntime/internal/server/grpc"
	"github.com/and161185/uiruntime/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// env is what every command runs against.
type env struct {
	ctx   context.Context
	tr    transport
	store sessionStore
	in    io.Reader
	out   io.Writer
	now   func() time.Time
}

type command struct {
	args string
	run  func(e *env, args []string) error
}

// errInvalid exits 1 without an extra message; the report was already printed.
var errInvalid = errors.New("invalid definition")

var commands = map[string]command{
	"version":  {"", cmdVersion},
	"validate": {"-f <definition.json>", cmdValidate},
	"play":     {"-f <definition.json> [-data <data.json>] [-submit] [-v]", cmdPlay},
	"check":    {"-f <definition.json>", cmdCheck},
	"publish":  {"-name <name> -f <definition.json> [-data <data.json>]", cmdPublish},
	"open":     {"-app <uuid>", cmdOpen},
	"view":     {"", cmdView},
	"dispatch": {"-action <json|@file> [-item <json|@file>]", cmdDispatch},
	"set":      {"-form <json|@file>", cmdSet},
	"press":    {"-popup <id> [-button <n>]", cmdPress},
	"close":    {"", cmdClose},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: uirt [-addr HOST:PORT] [-cacert file | -insecure | -plaintext] <command> [args]")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", n, commands[n].args)
	}
}

func main() {
	var tr transport
	flag.StringVar(&tr.addr, "addr", "localhost:8443", "server addr")
	flag.StringVar(&tr.caFile, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&tr.skipVerify, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&tr.plaintext, "plaintext", false, "no TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		usage()
		os.Exit(2)
	}
	store, err := defaultStore()
	if err != nil {
		exit(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	e := &env{ctx: ctx, tr: tr, store: store, in: os.Stdin, out: os.Stdout, now: time.Now}
	if err := cmd.run(e, flag.Args()[1:]); err != nil {
		exit(err)
	}
}

func exit(err error) {
	switch s, ok := status.FromError(err); {
	case errors.Is(err, errInvalid):
	case ok:
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
	default:
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

// ---- io helpers ----

// readInput reads a file, or e.in for "-".
func (e *env) readInput(p string) ([]byte, error) {
	if p == "" {
		return nil, errors.New("missing -f")
	}
	if p == "-" {
		return io.ReadAll(e.in)
	}
	return os.ReadFile(p)
}

// jsonArg accepts inline JSON or @file.
func (e *env) jsonArg(v string) (json.RawMessage, error) {
	v = strings.TrimSpace(v)
	if rest, ok := strings.CutPrefix(v, "@"); ok {
		b, err := e.readInput(rest)
		if err != nil {
			return nil, err
		}
		v = string(b)
	}
	if !json.Valid([]byte(v)) {
		return nil, fmt.Errorf("not valid JSON: %.40q", v)
	}
	return json.RawMessage(v), nil
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// definition reads a definition file and wraps it as a JSON string for the wire.
func (e *env) definition(path string) (json.RawMessage, error) {
	text, err := e.readInput(path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// ---- local ----

func cmdVersion(e *env, _ []string) error {
	_, err := fmt.Fprintf(e.out, "uirt %s (%s)\n", version, buildDate)
	return err
}

func cmdValidate(e *env, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	f := fs.String("f", "", "definition file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text, err := e.readInput(*f)
	if err != nil {
		return err
	}
	rep := service.NewAppService(nil, nil).Validate(e.ctx, text)
	if err := e.print(rep); err != nil {
		return err
	}
	if !rep.OK() {
		return errInvalid
	}
	return nil
}

// ---- remote, public ----

func cmdCheck(e *env, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	f := fs.String("f", "", "definition file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	def, err := e.definition(*f)
	if err != nil {
		return err
	}
	var out map[string]any
	if err := e.tr.invoke(e.ctx, "", grpcserver.MethodValidate, convert.ValidateRequest{Definition: def}, &out); err != nil {
		return err
	}
	return e.print(out)
}

func cmdPublish(e *env, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	name := fs.String("name", "", "application name")
	f := fs.String("f", "", "definition file ('-'=stdin)")
	data := fs.String("data", "", "databaseData snapshot file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("missing -name")
	}
	req := convert.PublishRequest{Name: *name}
	var err error
	if req.Definition, err = e.definition(*f); err != nil {
		return err
	}
	if *data != "" {
		if req.Data, err = e.jsonArg("@" + *data); err != nil {
			return err
		}
	}
	var resp convert.PublishResponse
	if err := e.tr.invoke(e.ctx, "", grpcserver.MethodPublish, req, &resp); err != nil {
		return err
	}
	if err := e.print(resp); err != nil {
		return err
	}
	if resp.AppID == "" {
		return errInvalid
	}
	return nil
}

func cmdOpen(e *env, args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	app := fs.String("app", "", "application id (uuid)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *app == "" {
		return errors.New("missing -app")
	}
	var resp convert.OpenResponse
	if err := e.tr.invoke(e.ctx, "", grpcserver.MethodOpen, convert.OpenRequest{AppID: *app}, &resp); err != nil {
		return err
	}
	err := e.store.save(session{InstanceID: resp.InstanceID, AccessToken: resp.AccessToken, ExpiresAt: resp.ExpiresAt})
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "instance", resp.InstanceID)
	return e.print(resp.View)
}

// ---- remote, instance ----

// onInstance calls method with the saved instance token and prints the frame.
func (e *env) onInstance(method string, req any) error {
	sess, err := e.store.load(e.now())
	if err != nil {
		return err
	}
	var out map[string]any
	if err := e.tr.invoke(e.ctx, sess.AccessToken, method, req, &out); err != nil {
		return err
	}
	return e.print(out)
}

func cmdView(e *env, _ []string) error {
	return e.onInstance(grpcserver.MethodView, struct{}{})
}

func cmdDispatch(e *env, args []string) error {
	fs := flag.NewFlagSet("dispatch", flag.ContinueOnError)
	action := fs.String("action", "", "action JSON or @file")
	item := fs.String("item", "", "list item JSON or @file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var req convert.DispatchRequest
	var err error
	if req.Action, err = e.jsonArg(*action); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if *item != "" {
		raw, err := e.jsonArg(*item)
		if err != nil {
			return fmt.Errorf("item: %w", err)
		}
		if err := json.Unmarshal(raw, &req.Item); err != nil {
			return fmt.Errorf("item: %w", err)
		}
	}
	return e.onInstance(grpcserver.MethodDispatch, req)
}

func cmdSet(e *env, args []string) error {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	form := fs.String("form", "", "partial form JSON or @file (null removes a key)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := e.jsonArg(*form)
	if err != nil {
		return fmt.Errorf("form: %w", err)
	}
	var req convert.SetFormRequest
	if err := json.Unmarshal(raw, &req.Form); err != nil {
		return fmt.Errorf("form: %w", err)
	}
	return e.onInstance(grpcserver.MethodSetForm, req)
}

func cmdPress(e *env, args []string) error {
	fs := flag.NewFlagSet("press", flag.ContinueOnError)
	popup := fs.String("popup", "", "popup id")
	button := fs.Int("button", 0, "button index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return e.onInstance(grpcserver.MethodPressButton, convert.PressButtonRequest{PopupID: *popup, Button: *button})
}

func cmdClose(e *env, _ []string) error {
	if err := e.onInstance(grpcserver.MethodClose, struct{}{}); err != nil {
		return err
	}
	return e.store.clear()
}
