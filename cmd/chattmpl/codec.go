package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/chat-template-codecs/internal/codec"
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

var inputFile string

// codecInput is the JSON document the one-shot commands read. Each command
// uses the fields it needs.
type codecInput struct {
	Family     string                `json:"family,omitempty"`
	Effort     domain.Effort         `json:"reasoning_effort,omitempty"`
	Messages   []domain.Message      `json:"messages,omitempty"`
	Functions  []domain.FunctionSpec `json:"functions,omitempty"`
	Completion string                `json:"completion,omitempty"`
	Text       string                `json:"text,omitempty"`
}

var familiesCmd = &cobra.Command{
	Use:   "families",
	Short: "List the registered model families",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listFamilies(cmd.OutOrStdout(), codec.NewRegistry())
	},
}

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Render messages and functions into a raw prompt",
	Long: `Reads {"family", "reasoning_effort", "messages", "functions"} as JSON from
stdin (or --input) and writes the prompt text to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCodec(cmd, formatPrompt)
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse a raw completion",
	Long: `Reads {"family", "reasoning_effort", "completion"} as JSON and writes the
parsed completion plus the assistant history message as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCodec(cmd, parseCompletion)
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Strictly decode tool calls from text",
	Long: `Reads {"family", "text"} as JSON and writes the decoded calls as a JSON list
of {name: arguments} objects.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCodec(cmd, decodeCalls)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{formatCmd, parseCmd, decodeCmd} {
		cmd.Flags().StringVarP(&inputFile, "input", "i", "", "read the request from this file instead of stdin")
	}
}

type codecFunc func(ctx context.Context, c *codec.Codec, in *codecInput, out io.Writer) error

func runCodec(cmd *cobra.Command, fn codecFunc) error {
	var r io.Reader = cmd.InOrStdin()
	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	return execCodec(cmd.Context(), r, cmd.OutOrStdout(), codecDefaults(), fn)
}

func codecDefaults() codecInput {
	if cfg == nil {
		return codecInput{Family: "k2", Effort: domain.EffortMedium}
	}
	return codecInput{Family: cfg.Codec.Family, Effort: domain.Effort(cfg.Codec.Effort)}
}

// execCodec decodes one request from r, resolves its codec against the
// defaults and runs fn.
func execCodec(ctx context.Context, r io.Reader, w io.Writer, defaults codecInput, fn codecFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var in codecInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	if in.Family == "" {
		in.Family = defaults.Family
	}
	if in.Effort == "" {
		in.Effort = defaults.Effort
	}

	c, err := codec.NewRegistry().Codec(in.Family, codec.WithEffort(in.Effort))
	if err != nil {
		return err
	}
	return fn(ctx, c, &in, w)
}

func formatPrompt(ctx context.Context, c *codec.Codec, in *codecInput, w io.Writer) error {
	prompt, err := c.FormatPrompt(ctx, in.Messages, in.Functions)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, prompt)
	return err
}

func parseCompletion(ctx context.Context, c *codec.Codec, in *codecInput, w io.Writer) error {
	parsed, err := c.ParseCompletion(ctx, in.Completion)
	if err != nil {
		return err
	}
	return writeJSON(w, struct {
		*domain.ParsedCompletion
		HistoryMessage domain.Message `json:"history_message"`
	}{parsed, parsed.HistoryMessage()})
}

func decodeCalls(ctx context.Context, c *codec.Codec, in *codecInput, w io.Writer) error {
	calls, err := c.DecodeCalls(in.Text)
	if err != nil {
		return err
	}
	if calls == nil {
		calls = []domain.FunctionInvocation{}
	}
	return writeJSON(w, calls)
}

func listFamilies(w io.Writer, registry *codec.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tALIASES\tCATALOG\tREASONING")
	for _, f := range registry.Families() {
		var dialects []string
		if f.Reasoning != nil {
			for _, d := range f.Reasoning.Dialects.Dialects {
				dialects = append(dialects, d.Name)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			f.Name,
			orDash(strings.Join(f.Aliases, ",")),
			f.Catalog.Style,
			orDash(strings.Join(dialects, ",")),
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
