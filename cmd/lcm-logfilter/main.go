// Command lcm-logfilter copies events from one log to another, keeping
// only those whose channel matches a subscription pattern. It reuses the
// dispatch package's pattern compiler directly rather than reimplementing
// channel matching, so lcm-logfilter's --channel flag accepts exactly the
// same literal/prefix/regex syntax Subscribe does.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lcm-go/dispatch"
	"lcm-go/eventlog"
	"lcm-go/internal/obs"
)

func main() {
	var (
		input    string
		output   string
		pattern  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "lcm-logfilter",
		Short: "Filter an LCM event log by channel pattern",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := obs.Init(logLevel, false); err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			return run(input, output, pattern)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "lcmlog", "event log file to read")
	cmd.Flags().StringVarP(&output, "output", "o", "lcmlog.filtered", "event log file to write")
	cmd.Flags().StringVarP(&pattern, "channel", "c", ".*", "channel pattern to keep (literal, PREFIX.*, or regex)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(input, output, pattern string) error {
	d := dispatch.New()
	kept := 0
	sub, err := d.Subscribe(pattern, func(*dispatch.Message) { kept++ })
	if err != nil {
		return err
	}
	defer d.Unsubscribe(sub)

	r, err := eventlog.Open(input, eventlog.Read)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := eventlog.Open(output, eventlog.Write)
	if err != nil {
		return err
	}
	defer w.Close()

	log := obs.Named("lcm-logfilter").Sugar()
	total := 0
	written := 0

	for {
		ev, err := r.ReadNextEvent()
		if err == io.EOF {
			log.Infow("filter complete", "read", total, "written", written)
			return nil
		}
		if err != nil {
			return err
		}
		total++

		d.Deliver(dispatch.Message{Channel: ev.Channel, Data: ev.Data, ReceiveTimeMicros: ev.TimestampMicros})
		if d.Drain(nil) == 0 {
			continue // did not match pattern
		}
		if err := w.WriteEvent(ev); err != nil {
			return err
		}
		written++
	}
}
