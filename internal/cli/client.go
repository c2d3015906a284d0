package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/park285/liarslock/internal/apiclient"
	"github.com/park285/liarslock/internal/msgcat"
)

func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register <name>",
		Short: "Register an agent against a running server and print its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiclient.NewClient(rootOpts.Config.APIBaseURL)
			res, err := c.Register(contextOf(cmd), args[0])
			if err != nil {
				return err
			}
			msgs := catalog(rootOpts)
			text := msgs.Text("smoke.registered", map[string]any{"Name": res.Agent.Name, "ID": res.Agent.ID}, res.Agent.ID) +
				"\napi_key: " + res.APIKey
			return emit(cmd, rootOpts.Format, res, text)
		},
	}
}

type SmokeOptions struct {
	*RootOptions
	Prefix string
}

func NewSmokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SmokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Play one scripted round against a running server",
		Long: `Register two fresh agents and play a full commit, message, guess and
reveal round through the HTTP API. Fails unless the liar wins.

Example:
  liarslock smoke --api http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := strings.SplitN(uuid.NewString(), "-", 2)[0]
			liar := fmt.Sprintf("%s-%s-liar", opts.Prefix, tag)
			honest := fmt.Sprintf("%s-%s-honest", opts.Prefix, tag)

			res, err := apiclient.Smoke(contextOf(cmd), apiclient.NewClient(opts.Config.APIBaseURL), liar, honest)
			if err != nil {
				return err
			}
			if res.Final.Winner != res.Liar.ID {
				return fmt.Errorf("unexpected winner %q in match %s", res.Final.Winner, res.Final.MatchID)
			}
			msgs := catalog(rootOpts)
			lines := []string{
				msgs.Text("smoke.registered", map[string]any{"Name": res.Liar.Name, "ID": res.Liar.ID}, res.Liar.ID),
				msgs.Text("smoke.registered", map[string]any{"Name": res.Honest.Name, "ID": res.Honest.ID}, res.Honest.ID),
				msgs.Text("smoke.finished", map[string]any{
					"MatchID": res.Final.MatchID,
					"Winner":  res.Liar.Name,
					"Phase":   res.Final.Phase,
				}, res.Final.MatchID),
			}
			return emit(cmd, opts.Format, res, strings.Join(lines, "\n"))
		},
	}
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "smoke", "name prefix for the generated agents")
	return cmd
}

func catalog(o *RootOptions) *msgcat.Catalog {
	if c, err := msgcat.New(o.Config.MessageDir); err == nil {
		return c
	}
	return msgcat.MustDefault()
}

// emit writes v as JSON or text as text, depending on format.
func emit(cmd *cobra.Command, format string, v any, text string) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(out, text)
	return err
}
