package cli

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getgenie/genie/internal/events"
	"github.com/getgenie/genie/internal/monitor"
	"github.com/getgenie/genie/internal/output"
	"github.com/getgenie/genie/internal/util"
)

var (
	monitorUntil   string
	monitorTimeout time.Duration
	monitorRecord  bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <target>",
	Short: "Watch one pane's event stream",
	Long: `Polls the target pane, classifies its state, and prints every event.
With --until, runs a completion-detection method instead and exits once the
agent's turn finishes (or the timeout expires). Targets are resolved like
everywhere else: raw pane id, worker id, worker:N sub-pane, session:window,
or session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		d := driver()
		resolved, err := newResolver(reg, d).Resolve(args[0])
		if err != nil {
			return err
		}

		m := monitor.New(d, resolved.PaneID, monitor.Config{
			PollInterval: cfg.PollInterval(),
			CaptureLines: cfg.Monitor.CaptureLines,
		})

		var stopRecording func()
		if monitorRecord {
			sink, err := events.NewSink(cfg.StateDir)
			if err != nil {
				return err
			}
			defer sink.Close()
			stopRecording = sink.Record(m)
			defer stopRecording()
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		f := formatter()

		// Mirror classified states into the registry so workers list and
		// watch reflect what the pane is doing.
		stopTracking := reg.Track(m)
		defer stopTracking()

		if monitorUntil != "" {
			method, err := monitor.ResolveMethod(monitorUntil)
			if err != nil {
				return err
			}
			m.Start()
			defer m.Stop()

			res, err := method.Detect(ctx, m, monitorTimeout)
			if err != nil && ctx.Err() == nil {
				return err
			}
			if f.JSON() {
				return f.Emit(res)
			}
			if res.Complete {
				f.Success("%s complete: %s (after %s, state %s)",
					resolved.PaneID, res.Reason, res.Latency.Round(time.Millisecond), res.State)
			} else {
				f.Warn("%s not complete: %s (state %s)", resolved.PaneID, res.Reason, res.State)
			}
			return nil
		}

		stream, unsub := m.Subscribe()
		defer unsub()
		m.Start()
		defer m.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-stream:
				if !ok {
					return nil
				}
				printEvent(f, ev)
				if ev.Type == monitor.EventPollError {
					// Track handles the unregistration; just stop streaming.
					return nil
				}
			}
		}
	},
}

func printEvent(f *output.Formatter, ev monitor.Event) {
	if f.JSON() {
		_ = json.NewEncoder(f.Writer()).Encode(ev)
		return
	}
	ts := ev.Timestamp.Local().Format("15:04:05")
	switch ev.Type {
	case monitor.EventStateChange:
		state := "unknown"
		if ev.State != nil {
			state = string(ev.State.State)
		}
		f.Textln("%s %s state -> %s", f.Dim(ts), ev.PaneID, f.Bold(state))
	case monitor.EventSilence:
		f.Textln("%s %s silent for %s", f.Dim(ts), ev.PaneID, ev.Silence.Round(time.Second))
	case monitor.EventActivity, monitor.EventOutput:
		f.Textln("%s %s %s: %s", f.Dim(ts), ev.PaneID, ev.Type,
			util.Truncate(ev.NewOutput, 80))
	case monitor.EventPollError:
		f.Warn("%s capture failed: %s", ev.PaneID, ev.Err)
	default:
		f.Textln("%s %s %s", f.Dim(ts), ev.PaneID, ev.Type)
	}
}

var eventsCmd = &cobra.Command{
	Use:   "events <target>",
	Short: "Show recorded events for a pane",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		resolved, err := newResolver(reg, driver()).Resolve(args[0])
		if err != nil {
			return err
		}
		n, _ := cmd.Flags().GetInt("tail")
		evs, err := events.Tail(cfg.StateDir, resolved.PaneID, n)
		if err != nil {
			return err
		}
		f := formatter()
		if f.JSON() {
			return f.Emit(evs)
		}
		for _, ev := range evs {
			printEvent(f, ev)
		}
		return nil
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorUntil, "until", "", "completion method: silence, silence-<N>s, silence-<N>ms, idle")
	monitorCmd.Flags().DurationVar(&monitorTimeout, "timeout", 10*time.Minute, "completion detection timeout")
	monitorCmd.Flags().BoolVar(&monitorRecord, "record", false, "append events to the pane's event stream file")

	eventsCmd.Flags().Int("tail", 0, "show only the last N events")

	rootCmd.AddCommand(monitorCmd, eventsCmd)
}
