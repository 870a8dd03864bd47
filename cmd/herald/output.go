package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/tidwall/pretty"
	"golang.org/x/term"

	"github.com/dshills/herald/internal/notify"
)

// Output formats for the run summary.
const (
	outputText = "text"
	outputJSON = "json"
)

func validOutput(format string) error {
	switch format {
	case outputText, outputJSON:
		return nil
	default:
		return fmt.Errorf("invalid output format %q (must be %s or %s)", format, outputText, outputJSON)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printStats(out io.Writer, format string, s notify.Stats) error {
	if format == outputJSON {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		data = pretty.Pretty(data)
		if isTerminal(out) {
			data = pretty.Color(data, nil)
		}
		_, err = out.Write(data)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "fired\t%d\n", s.Fired)
	fmt.Fprintf(w, "delivered\t%d\n", s.Delivered)
	fmt.Fprintf(w, "failed\t%d\n", s.Failed)
	fmt.Fprintf(w, "rejected\t%d\n", s.Rejected)
	fmt.Fprintf(w, "dropped\t%d\n", s.Dropped)
	fmt.Fprintf(w, "listeners\t%d\n", s.Listeners)
	fmt.Fprintf(w, "policy builds\t%d\n", s.PolicyBuilds)
	return w.Flush()
}
