package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bjaus/bus"
)

func newDescribeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [filter]",
		Short: "Print the sealed registry: handlers and hooks per message type",
		Long: `Describe prints every message descriptor of the order bus with its
handlers and the hooks attached to it, in the order they run. A hook is
marked "exact" when it was declared for the message type itself and
"supertype" when it was declared for an interface or base type.

When filter is given only message types containing it are printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, m, err := a.wire(nil)
			if err != nil {
				return err
			}
			var filter string
			if len(args) == 1 {
				filter = args[0]
			}
			return describe(cmd.OutOrStdout(), m.Registry(), filter)
		},
	}
}

func describe(out io.Writer, reg *bus.Registry, filter string) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, d := range reg.Descriptors() {
		name := d.MessageType().String()
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}

		fmt.Fprintf(tw, "%s\n", name)
		if base := d.Base(); base != nil {
			fmt.Fprintf(tw, "  base\t%s\n", base.MessageType())
		}
		for _, h := range d.Handlers() {
			result := "-"
			if rt := h.ResultType(); rt != nil {
				result = rt.String()
			}
			fmt.Fprintf(tw, "  handler\t%s\t%s\t-> %s\n", h.Mode(), h.HandlerType(), result)
		}
		for _, hooks := range [][]*bus.HookDescriptor{d.PreHooks(), d.PostHooks(), d.ErrorHooks()} {
			for _, h := range hooks {
				match, _ := d.HookMatch(h)
				fmt.Fprintf(tw, "  %s\t%s\t%s\t(%s)\n", h.Kind(), h.HookType(), h.AppliesTo(), match)
			}
		}
	}
	return tw.Flush()
}
