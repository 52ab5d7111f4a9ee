package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/klimadashboard/klimasync/internal/directus"
	"github.com/klimadashboard/klimasync/internal/translate"
	"github.com/klimadashboard/klimasync/pkg/anthropic"
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Fill missing content translations",
	Long: `Generate missing translation rows for the Directus content tables.

For every record the first existing translation is used as the source and
the missing target languages are generated with Claude. Each generated
translation is previewed and confirmed before insert unless --yes is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Anthropic.Key == "" {
			return eris.New("translate: anthropic.key must be configured")
		}

		dc, err := directusClient()
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		tablesStr, _ := cmd.Flags().GetString("tables")

		opts := translate.Options{}
		if tablesStr != "" {
			opts.Tables = strings.Split(tablesStr, ",")
			for i := range opts.Tables {
				opts.Tables[i] = strings.TrimSpace(opts.Tables[i])
			}
		}
		if !yes {
			opts.Confirm = promptConfirm
		}

		tr := translate.NewTranslator(dc,
			anthropic.NewClient(cfg.Anthropic.Key),
			cfg.Anthropic.Model,
			cfg.Anthropic.MaxTokens,
			opts,
		)

		inserted, err := tr.Run(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "translate")
		}

		fmt.Printf("Inserted %d translations\n", inserted)
		return nil
	},
}

func init() {
	translateCmd.Flags().Bool("yes", false, "insert translations without confirmation")
	translateCmd.Flags().String("tables", "", "comma-separated subset of content tables")
	rootCmd.AddCommand(translateCmd)
}

// promptConfirm previews a generated translation on stdout and asks for
// approval on stdin.
func promptConfirm(table string, recordID any, lang string, fields directus.Item) bool {
	preview, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		preview = []byte(fmt.Sprintf("%v", fields))
	}

	fmt.Println("\n--- TRANSLATION PREVIEW ---")
	fmt.Println(string(preview))
	fmt.Println("---------------------------")
	fmt.Printf("Insert this %s translation for %s record %v? (y/n): ", strings.ToUpper(lang), table, recordID)

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
