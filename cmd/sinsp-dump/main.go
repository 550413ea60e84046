// Command sinsp-dump opens a trace file and prints each enriched event
// to stdout, mirroring the teacher's main.go signal-driven event loop.
// It has no live-capture mode.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fanyeren/sysdig"
)

func main() {
	filterExpr := flag.String("filter", "", "filter expression, e.g. evt.type=open")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sinsp-dump [-filter expr] <trace-file>")
		os.Exit(2)
	}

	insp := sysdig.NewInspector(nil)

	if *filterExpr != "" {
		if err := insp.SetFilter(*filterExpr); err != nil {
			fmt.Fprintf(os.Stderr, "bad filter: %v\n", err)
			os.Exit(2)
		}
	}

	if err := insp.OpenFile(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		insp.Close()
	}()

	for {
		ev, err := insp.Next()
		switch {
		case err == nil:
			fmt.Printf("%d %s tid=%d %s\n", ev.EventNum, ev.Type, ev.Tid, ev.Dir)
		case errors.Is(err, io.EOF):
			return
		case errors.Is(err, sysdig.ErrTimeout):
			continue
		default:
			fmt.Fprintf(os.Stderr, "next: %v\n", err)
			return
		}
	}
}
