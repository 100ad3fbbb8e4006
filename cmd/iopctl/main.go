package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/xaitan80/iopnet/internal/channel"
	"github.com/xaitan80/iopnet/internal/client"
	"github.com/xaitan80/iopnet/internal/frame"
	"github.com/xaitan80/iopnet/internal/headers"
	"github.com/xaitan80/iopnet/internal/logging"
	"github.com/xaitan80/iopnet/internal/neterr"
	"github.com/xaitan80/iopnet/internal/netstatus"
	"github.com/xaitan80/iopnet/internal/request"
)

// fieldList collects repeated -H name:value flags.
type fieldList []headers.Field

func (l *fieldList) String() string { return fmt.Sprint(*l) }

func (l *fieldList) Set(s string) error {
	name, value, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("header %q: want name:value", s)
	}
	*l = append(*l, headers.Field{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	return nil
}

// nameList collects repeated -collect flags.
type nameList []string

func (l *nameList) String() string     { return strings.Join(*l, ",") }
func (l *nameList) Set(s string) error { *l = append(*l, s); return nil }

func main() {
	var (
		method  = flag.String("X", "GET", "request method")
		token   = flag.String("token", "", "credential sent as Authorization: Basic")
		data    = flag.String("d", "", "request body, @file reads it from a file")
		ca      = flag.String("ca", "", "PEM bundle of trusted roots")
		posix   = flag.Bool("posix", false, "classify codes with the desktop status table")
		timeout = flag.Duration("timeout", 10*time.Second, "dial timeout")
		level   = flag.String("log-level", "warn", "log level")
		hdrs    fieldList
		collect nameList
	)
	flag.Var(&hdrs, "H", "extra request header name:value, repeatable")
	flag.Var(&collect, "collect", "response header to print, repeatable")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: iopctl [flags] uri")
		flag.PrintDefaults()
		os.Exit(2)
	}

	m, ok := request.ParseMethod(strings.ToUpper(*method))
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown method:", *method)
		os.Exit(2)
	}
	lvl, err := logging.ParseLevel(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	body, err := readBody(*data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	table := netstatus.Default
	if *posix {
		table = netstatus.Posix
	}
	log := logging.Console(os.Stderr, lvl, "iopctl")
	c := client.New(client.Options{
		Collect: collect,
		Table:   table,
		Channel: channel.Options{CABundle: *ca, Logger: log},
		Logger:  log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	f, err := c.Do(ctx, flag.Arg(0), client.Request{Method: m, Credential: *token, Headers: hdrs, Body: body})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", neterr.StatusOf(err), err)
		os.Exit(1)
	}
	dump(os.Stdout, f, collect)
}

func readBody(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(data, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(data), nil
}

// dump prints the code, the collected headers and the body.
func dump(w io.Writer, f *frame.Frame, collect []string) {
	status := "UNKNOWN"
	if s, ok := f.Status(); ok {
		status = s.String()
	}
	fmt.Fprintf(w, "%d %s\n", f.Code(), status)
	for _, name := range collect {
		if v, ok := f.Header(name); ok {
			fmt.Fprintf(w, "%s: %s\n", name, v)
		}
	}
	if len(f.Body()) > 0 {
		fmt.Fprintln(w)
		_, _ = w.Write(f.Body())
		fmt.Fprintln(w)
	}
}
