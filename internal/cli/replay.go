package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/bjaus/bus"
	"github.com/bjaus/bus/ingest"
	"github.com/bjaus/bus/internal/orders"
)

const maxLineSize = 1 << 20

type replayOptions struct {
	stock           map[string]int
	skipUnknown     bool
	continueOnError bool
}

// newReplayCommand feeds JSON lines through the ingest router into the bus.
func newReplayCommand(a *app) *cobra.Command {
	opts := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Replay JSON-lines messages through the bus",
		Long: `Replay reads one message per line from file, or stdin when file is
omitted or "-". Lines are native envelopes or structured CloudEvents:

  {"type":"order.place","payload":{"order_id":"o-1","customer":"ada@example.com","items":[{"sku":"apple","quantity":2}]}}
  {"specversion":"1.0","type":"order.cancel","data":{"order_id":"o-1"}}

Known types: order.place, order.cancel, order.placed, order.cancelled.
The resulting orders are printed once all lines are processed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return a.replay(cmd.Context(), in, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringToIntVar(&opts.stock, "stock", nil, "Initial stock per SKU, e.g. --stock apple=10")
	cmd.Flags().BoolVar(&opts.skipUnknown, "skip-unknown", false, "Skip lines with an unknown message type")
	cmd.Flags().BoolVar(&opts.continueOnError, "continue-on-error", false, "Report failing lines and keep going")

	return cmd
}

// newRouter binds the order wire types. Commands go to their single handler,
// events to every subscriber.
func newRouter(a *app, m *bus.Mediator, opts *replayOptions) *ingest.Router {
	ropts := []ingest.Option{
		ingest.WithLogger(a.logger),
		ingest.WithValidator(validator.New(validator.WithRequiredStructEnabled())),
		ingest.WithOnFailed(func(_ context.Context, source, typ string, err error, d time.Duration) {
			a.logger.Warn().Err(err).Str("source", source).Str("type", typ).Dur("duration", d).Msg("replayed message failed")
		}),
	}
	if opts.skipUnknown {
		ropts = append(ropts, ingest.WithOnUnknownType(func(_ context.Context, source, typ string) error {
			a.logger.Info().Str("source", source).Str("type", typ).Msg("skipping unknown message type")
			return nil
		}))
	}

	r := ingest.New(ingest.Publish(m), ropts...)
	r.AddSource(ingest.EnvelopeSource())
	r.AddSource(ingest.CloudEventSource())

	send := ingest.Via(ingest.Send(m))
	ingest.Bind[*orders.PlaceOrder](r, "order.place", send)
	ingest.Bind[*orders.CancelOrder](r, "order.cancel", send)
	ingest.Bind[*orders.OrderPlaced](r, "order.placed")
	ingest.Bind[*orders.OrderCancelled](r, "order.cancelled")
	return r
}

func (a *app) replay(ctx context.Context, in io.Reader, out io.Writer, opts *replayOptions) error {
	svc, m, err := a.wire(opts.stock)
	if err != nil {
		return err
	}
	r := newRouter(a, m, opts)

	var processed, failed int
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; sc.Scan(); line++ {
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		processed++
		if err := r.Process(ctx, raw); err != nil {
			if !opts.continueOnError {
				return fmt.Errorf("line %d: %w", line, err)
			}
			failed++
			fmt.Fprintf(out, "line %d: %v\n", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	fmt.Fprintf(out, "processed %d messages, %d failed, %d dead letters\n", processed, failed, len(svc.DeadLetters()))
	return printOrders(ctx, out, m)
}

func printOrders(ctx context.Context, out io.Writer, m *bus.Mediator) error {
	seq, err := bus.StreamQuery[orders.Order](ctx, m, &orders.ListOrders{})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tCUSTOMER\tSTATUS\tTOTAL\tHISTORY")
	for o, err := range seq {
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d.%02d\t%s\n",
			o.ID, o.Customer, o.Status, o.TotalCents/100, o.TotalCents%100, strings.Join(o.History, ", "))
	}
	return tw.Flush()
}
