// Command lcm-logger subscribes to every channel on an LCM provider and
// records each delivery to an event log file, the way the teacher's
// cmd/server drove a signal.NotifyContext main loop until interrupted
// (internal/rcarmo-codebits-tv/cmd/server/main.go), generalized here from
// frame generation to LCM subscription draining.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	lcm "lcm-go"
	"lcm-go/eventlog"
	"lcm-go/internal/obs"
)

func main() {
	var (
		provider string
		output   string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "lcm-logger",
		Short: "Record LCM traffic to an event log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := obs.Init(logLevel, false); err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			return run(provider, output)
		},
	}
	cmd.Flags().StringVar(&provider, "url", "", "provider URL (defaults to DEFAULT_URL / udpm://239.255.76.67:7667)")
	cmd.Flags().StringVarP(&output, "output", "o", "lcmlog", "event log file to write")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(providerURL, output string) error {
	l, err := lcm.Create(providerURL)
	if err != nil {
		return err
	}
	defer l.Close()

	w, err := eventlog.Open(output, eventlog.Write)
	if err != nil {
		return err
	}
	defer w.Close()

	log := obs.Named("lcm-logger").Sugar()

	count := 0
	if _, err := l.Subscribe(".*", func(m *lcm.Message) {
		ev := &eventlog.Event{
			TimestampMicros: m.ReceiveTimeMicros,
			Channel:         m.Channel,
			Data:            m.Data,
		}
		if err := w.WriteEvent(ev); err != nil {
			log.Errorw("write event failed", "channel", m.Channel, "error", err)
			return
		}
		count++
		if count%100 == 0 {
			log.Infow("logged events", "count", count)
		}
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			log.Infow("shutting down", "total_events", count)
			return nil
		default:
		}
		if code := l.HandleTimeout(500); code < 0 {
			return fmt.Errorf("lcm-logger: handle: provider error")
		}
	}
}
