// Command lcm-logplayer replays a previously recorded event log onto a live
// LCM provider, pacing publications according to their recorded timestamps
// (scaled by --speed). Grounded on the teacher's cmd/proxy background
// reader loop (internal/rcarmo-codebits-tv/cmd/proxy/main.go's "go func(){
// for { rx.Next(); h.broadcast(...) } }()"), generalized from multicast
// receive+HTTP broadcast to file-read+LCM publish.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	lcm "lcm-go"
	"lcm-go/eventlog"
	"lcm-go/internal/obs"
)

func main() {
	var (
		input    string
		provider string
		speed    float64
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "lcm-logplayer",
		Short: "Replay an LCM event log onto a live provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := obs.Init(logLevel, false); err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			return run(input, provider, speed)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "lcmlog", "event log file to replay")
	cmd.Flags().StringVar(&provider, "url", "", "provider URL to publish onto")
	cmd.Flags().Float64Var(&speed, "speed", 1.0, "playback speed multiplier (2.0 = twice as fast)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(input, providerURL string, speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("lcm-logplayer: --speed must be positive")
	}

	r, err := eventlog.Open(input, eventlog.Read)
	if err != nil {
		return err
	}
	defer r.Close()

	l, err := lcm.Create(providerURL)
	if err != nil {
		return err
	}
	defer l.Close()

	log := obs.Named("lcm-logplayer").Sugar()

	var lastTimestamp int64
	first := true
	published := 0

	for {
		ev, err := r.ReadNextEvent()
		if err == io.EOF {
			log.Infow("replay complete", "published", published)
			return nil
		}
		if err != nil {
			return err
		}

		if !first {
			delta := ev.TimestampMicros - lastTimestamp
			if delta > 0 {
				time.Sleep(time.Duration(float64(delta)/speed) * time.Microsecond)
			}
		}
		first = false
		lastTimestamp = ev.TimestampMicros

		if err := l.Publish(ev.Channel, ev.Data); err != nil {
			log.Errorw("publish failed", "channel", ev.Channel, "error", err)
			continue
		}
		published++
		if published%100 == 0 {
			log.Infow("replayed events", "count", published)
		}
	}
}
