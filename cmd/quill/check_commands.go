package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quill/internal/checker"
	"quill/internal/ipc"
	"quill/internal/language"
)

// maxSuggestions caps the replacements shown per match in text output.
const maxSuggestions = 3

// readInput takes text from args, --file or stdin, in that order.
func readInput(cmd *cobra.Command, args []string, file string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if file = strings.TrimSpace(file); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("no text given (pass text, --file or pipe to stdin)")
	}
	return string(data), nil
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var file string
	var lang string
	var caller string
	var timeout time.Duration
	var edit bool

	cmd := &cobra.Command{
		Use:   "check [text]",
		Short: "Check text and list the issues found",
		Long: "Check text with the running quill process. Without --language the text is " +
			"checked in the active language through the normal sequencing, so a later " +
			"check from the same caller supersedes this one.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, file)
			if err != nil {
				return err
			}
			if edit {
				return runEdit(ctx, cmd, text, caller)
			}
			if lang = strings.TrimSpace(lang); lang != "" {
				if lang, err = language.Normalize(lang); err != nil {
					return err
				}
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Check(cmd.Context(), ipc.CheckRequest{
					Text:      text,
					Caller:    strings.TrimSpace(caller),
					Language:  lang,
					TimeoutMs: int(timeout / time.Millisecond),
				})
				if err != nil {
					return err
				}
				if ok, err := writeStructured(ctx, cmd, resp); ok {
					return err
				}
				return renderCheck(cmd, text, resp)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read text from a file")
	cmd.Flags().StringVarP(&lang, "language", "l", "", "Check in this language without changing the active one")
	cmd.Flags().StringVar(&caller, "caller", "", "Caller id used for supersession (default: a fresh id)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "How long to wait for the result (default: server default)")
	cmd.Flags().BoolVar(&edit, "edit", false, "Report the text as an edit for background checking instead")
	return cmd
}

// editCaller is the caller id edits use when --caller is not given, so
// successive edits from the command line replace each other.
const editCaller = "cli-edit"

func runEdit(ctx *commandContext, cmd *cobra.Command, text, caller string) error {
	if caller = strings.TrimSpace(caller); caller == "" {
		caller = editCaller
	}
	return ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.Edit(cmd.Context(), text, caller)
		if err != nil {
			return err
		}
		if ok, err := writeStructured(ctx, cmd, resp); ok {
			return err
		}
		if resp.Accepted {
			fmt.Fprintln(cmd.OutOrStdout(), "edit accepted; a check will follow once typing pauses")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "background checking is off; edit ignored")
		}
		return nil
	})
}

func renderCheck(cmd *cobra.Command, text string, resp *ipc.CheckResponse) error {
	out := cmd.OutOrStdout()
	if resp.Stale {
		fmt.Fprintf(out, "check %d was not delivered: %s\n", resp.Sequence, describeStale(resp.StaleReason))
		return nil
	}
	if resp.Result.Failed() {
		return fmt.Errorf("check failed: %s", resp.Result.Error)
	}
	lang := describeLanguage(resp.Result.Language)
	if len(resp.Result.Matches) == 0 {
		fmt.Fprintf(out, "No issues found (%s, %dms)\n", lang, resp.DurationMs)
		return nil
	}
	rows := make([][]string, 0, len(resp.Result.Matches))
	for _, m := range resp.Result.Matches {
		rows = append(rows, []string{
			strconv.Itoa(m.Offset),
			excerpt(text, m),
			m.Message,
			suggestionList(m.Replacements),
			m.RuleID,
		})
	}
	fmt.Fprint(out, renderTable(matchColumns, rows))
	fmt.Fprintf(out, "%d issue(s) (%s, %dms)\n", len(resp.Result.Matches), lang, resp.DurationMs)
	return nil
}

func describeStale(reason string) string {
	switch reason {
	case ipc.StaleLanguageChanged:
		return "the language changed while it ran"
	case ipc.StaleSuperseded:
		return "a newer check from the same caller replaced it"
	case ipc.StaleTimeout:
		return "timed out waiting for the result"
	case ipc.StaleClosed:
		return "quill is shutting down"
	default:
		return reason
	}
}

func excerpt(text string, m checker.Match) string {
	if m.Offset < 0 || m.Length <= 0 || m.Offset+m.Length > len(text) {
		return ""
	}
	return text[m.Offset : m.Offset+m.Length]
}

func suggestionList(replacements []string) string {
	if len(replacements) > maxSuggestions {
		replacements = replacements[:maxSuggestions]
	}
	return strings.Join(replacements, ", ")
}

func describeLanguage(tag string) string {
	if tag == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s (%s)", language.DisplayName(tag), tag)
}

func newTagCommand(ctx *commandContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "tag [text]",
		Short: "Show the per-sentence token analysis of text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, file)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Tag(cmd.Context(), text)
				if err != nil {
					return err
				}
				if ok, err := writeStructured(ctx, cmd, resp); ok {
					return err
				}
				for _, sentence := range resp.Sentences {
					fmt.Fprintln(cmd.OutOrStdout(), sentence.String())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read text from a file")
	return cmd
}
