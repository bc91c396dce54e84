package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/ipc"
	"quill/internal/language"
)

func newLanguageCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "language",
		Aliases: []string{"lang"},
		Short:   "Show or change the checking language",
	}
	cmd.AddCommand(newLanguageShowCommand(ctx))
	cmd.AddCommand(newLanguageSetCommand(ctx))
	cmd.AddCommand(newLanguageListCommand(ctx))
	cmd.AddCommand(newLanguageDetectCommand(ctx))
	return cmd
}

type languageView struct {
	Language   string `json:"language" yaml:"language"`
	Name       string `json:"name" yaml:"name"`
	NativeName string `json:"native_name,omitempty" yaml:"native_name,omitempty"`
	AutoDetect bool   `json:"auto_detect" yaml:"auto_detect"`
	Running    bool   `json:"running" yaml:"running"`
}

func newLanguageShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active language",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := languageView{}
			client, err := ctx.dialClient()
			switch {
			case err == nil:
				defer client.Close()
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				view.Language = status.Language
				view.AutoDetect = status.AutoDetect
				view.Running = true
			case errors.Is(err, errNotRunning):
				cfg := ctx.configValue()
				view.Language = cfg.Checking.Language
				view.AutoDetect = cfg.Checking.AutoDetectLanguage
			default:
				return err
			}
			view.Name = language.DisplayName(view.Language)
			view.NativeName = language.NativeName(view.Language)

			if ok, err := writeStructured(ctx, cmd, view); ok {
				return err
			}
			suffix := ""
			if !view.Running {
				suffix = " (configured; quill is not running)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", describeLanguage(view.Language), suffix)
			return nil
		},
	}
}

func newLanguageSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <language>",
		Short: "Change the active language",
		Long: "Change the active language. A running quill applies it immediately and " +
			"discards in-flight results; otherwise the config file is updated.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := language.Normalize(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.dialClient()
			switch {
			case err == nil:
				defer client.Close()
				resp, err := client.SetLanguage(cmd.Context(), tag)
				if err != nil {
					return err
				}
				tag = resp.Language
			case errors.Is(err, errNotRunning):
				if err := ctx.persistOffline(func(cfg *config.Config) error {
					cfg.Checking.Language = tag
					return nil
				}); err != nil {
					return err
				}
			default:
				return err
			}
			if ok, err := writeStructured(ctx, cmd, ipc.SetLanguageResponse{Language: tag}); ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Language set to %s\n", describeLanguage(tag))
			if !language.Supported(tag) {
				fmt.Fprintf(cmd.OutOrStdout(), "note: no built-in rules for %s; only generic checks apply\n", language.Base(tag))
			}
			return nil
		},
	}
}

type languageEntry struct {
	Code       string `json:"code" yaml:"code"`
	Name       string `json:"name" yaml:"name"`
	NativeName string `json:"native_name" yaml:"native_name"`
}

func newLanguageListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "list",
		Short:       "List languages with built-in rules",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			codes := language.List()
			entries := make([]languageEntry, 0, len(codes))
			rows := make([][]string, 0, len(codes))
			for _, code := range codes {
				e := languageEntry{Code: code, Name: language.DisplayName(code), NativeName: language.NativeName(code)}
				entries = append(entries, e)
				rows = append(rows, []string{e.Code, e.Name, e.NativeName})
			}
			if ok, err := writeStructured(ctx, cmd, entries); ok {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(languageColumns, rows))
			return nil
		},
	}
}

type detectView struct {
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Detected bool   `json:"detected" yaml:"detected"`
}

func newLanguageDetectCommand(ctx *commandContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:         "detect [text]",
		Short:       "Guess the language of text",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, file)
			if err != nil {
				return err
			}
			tag, ok := language.Detect(text)
			view := detectView{Language: tag, Detected: ok}
			if handled, err := writeStructured(ctx, cmd, view); handled {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Could not determine the language")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeLanguage(tag))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read text from a file")
	return cmd
}
