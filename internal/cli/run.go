package cli

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/panyam/eventlink"
	"github.com/panyam/eventlink/internal/config"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Path string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a producer soak through one channel",
		Long: `Build a channel and dispatcher from the configuration, start the
configured number of producers each reporting events_per_producer answerless
events, wait until the channel drains and print what was counted.

Example:
  eventlink run
  eventlink run --config soak.yaml --format yaml -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.Path)
			if err != nil {
				return err
			}
			level := cfg.Level()
			if opts.Verbose {
				level = zerolog.DebugLevel
			}
			logger := zerolog.New(cmd.ErrOrStderr()).Level(level).With().Timestamp().Logger()

			report, err := RunSoak(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), opts.Format, report)
		},
	}

	cmd.Flags().StringVarP(&opts.Path, "config", "c", "", "path to a YAML configuration file")

	return cmd
}

// soakEvent is the argument every soak producer reports.
type soakEvent struct {
	Producer int
	Seq      int
}

func (e soakEvent) String() string {
	return fmt.Sprintf("producer=%d seq=%d", e.Producer, e.Seq)
}

// Report is what a soak run counted.
type Report struct {
	Channel       string                    `yaml:"channel"`
	Producers     int                       `yaml:"producers"`
	Produced      uint64                    `yaml:"produced"`
	Consumed      uint64                    `yaml:"consumed"`
	Notifications uint64                    `yaml:"notifications"`
	Elapsed       time.Duration             `yaml:"elapsed"`
	Dispatcher    eventlink.DispatcherStats `yaml:"dispatcher"`
	Snapshot      eventlink.Snapshot        `yaml:"snapshot"`
}

// RunSoak drives cfg.Producers concurrent producers through a fresh channel
// and returns once every event was consumed and the dispatcher stopped.
func RunSoak(ctx context.Context, cfg config.Config, logger zerolog.Logger) (Report, error) {
	ch, err := eventlink.NewChannel[soakEvent, struct{}](cfg.Name,
		eventlink.WithLog2Slots[soakEvent, struct{}](cfg.Log2Slots),
		eventlink.WithMaxListeners[soakEvent, struct{}](cfg.MaxListeners),
		eventlink.WithLogger[soakEvent, struct{}](logger))
	if err != nil {
		return Report{}, err
	}

	var consumed, notified, produced atomic.Uint64
	consumers := make([]eventlink.AnswerlessConsumer[soakEvent], cfg.Workers)
	for i := range consumers {
		consumers[i] = eventlink.AnswerlessFunc[soakEvent](func(*soakEvent) error {
			consumed.Add(1)
			return nil
		})
	}
	if err := ch.SetAnswerlessConsumer(consumers...); err != nil {
		return Report{}, err
	}
	for i := 0; i < cfg.Listeners; i++ {
		if _, err := ch.AddListener(eventlink.ListenerFunc[soakEvent](func(*soakEvent) error {
			notified.Add(1)
			return nil
		})); err != nil {
			return Report{}, err
		}
	}

	d, err := eventlink.NewDispatcher(ch, cfg.Workers, cfg.Capabilities(),
		eventlink.WithPollInterval(cfg.PollInterval),
		eventlink.WithDispatcherLogger(logger))
	if err != nil {
		return Report{}, err
	}
	group := eventlink.NewGroup(cfg.Name)
	group.Add(d)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < cfg.Producers; p++ {
		g.Go(func() error {
			for seq := 0; seq < cfg.EventsPerProd; seq++ {
				id, arg, err := ch.ReserveForReportContext(gctx, nil)
				if err != nil {
					return err
				}
				*arg = soakEvent{Producer: p, Seq: seq}
				ch.ReportReserved(id)
				produced.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.StopASAP()
		return Report{}, fmt.Errorf("soak on channel %q: %w", cfg.Name, err)
	}
	if err := d.StopWhenEmptyContext(ctx); err != nil {
		d.StopASAP()
		return Report{}, fmt.Errorf("soak on channel %q: %w", cfg.Name, err)
	}
	if err := group.Stop(); err != nil {
		return Report{}, err
	}
	elapsed := time.Since(start)

	logger.Debug().
		Str("channel", cfg.Name).
		Uint64("produced", produced.Load()).
		Dur("elapsed", elapsed).
		Msg("soak finished")

	return Report{
		Channel:       cfg.Name,
		Producers:     cfg.Producers,
		Produced:      produced.Load(),
		Consumed:      consumed.Load(),
		Notifications: notified.Load(),
		Elapsed:       elapsed,
		Dispatcher:    d.Stats(),
		Snapshot:      ch.Snapshot(),
	}, nil
}

func writeReport(w io.Writer, format string, r Report) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(r)
	}
	_, err := fmt.Fprintf(w, `channel %q
  producers:      %d
  produced:       %d
  consumed:       %d
  notifications:  %d
  consumer fails: %d
  listener fails: %d
  ready:          %d
  reserved:       %d
  elapsed:        %s
`, r.Channel, r.Producers, r.Produced, r.Consumed, r.Notifications,
		r.Dispatcher.ConsumerFailures, r.Dispatcher.ListenerFailures,
		r.Snapshot.Ready, r.Snapshot.Reserved, r.Elapsed.Round(time.Microsecond))
	return err
}
