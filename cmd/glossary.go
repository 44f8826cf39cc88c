/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/mdtran/internal/store"
)

var (
	glossaryDBPath string
	glossarySource string
	glossaryTarget string
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage the terminology glossary",
	Long: `Add, list, and delete terminology glossary entries.

Every glossary entry for the active language pair is injected into the
translation prompt, pinning how a term is rendered across all chunks of
a document and across runs. Use it for proper nouns, product names, and
project vocabulary the model would otherwise translate inconsistently.`,
}

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List glossary entries",
	Long: `List glossary entries, newest language pairs grouped together.
Without flags every entry is shown; --source and --target narrow the
listing to one side of a pair or to an exact pair.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		entries, err := db.ListGlossaryTerms(context.Background(), glossarySource, glossaryTarget)
		if err != nil {
			return fmt.Errorf("failed to list glossary: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("Glossary is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TERM\tTRANSLATION\tPAIR\tADDED\tID")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s->%s\t%s\t%s\n",
				e.SourceTerm, e.TargetTerm, e.SourceLang, e.TargetLang,
				e.CreatedAt.Format("2006-01-02"), e.ID)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d entries.\n", len(entries))
		return nil
	},
}

var glossaryAddCmd = &cobra.Command{
	Use:   "add <source-term> <target-term>",
	Short: "Pin a term translation for a language pair",
	Long: `Add a glossary entry. Re-adding a term for the same language pair
replaces its translation.

Example:
  mdtran glossary add "Kyiv" "Київ" --source en --target uk`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLanguagePair(); err != nil {
			return err
		}

		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.AddGlossaryTerm(context.Background(), glossarySource, glossaryTarget, args[0], args[1]); err != nil {
			return fmt.Errorf("failed to add glossary entry: %w", err)
		}
		fmt.Printf("Pinned %q -> %q for %s->%s translations.\n",
			args[0], args[1], glossarySource, glossaryTarget)
		return nil
	},
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a glossary entry by ID",
	Long: `Delete a glossary entry. IDs appear in the last column of
"mdtran glossary list".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.DeleteGlossaryTerm(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete glossary entry: %w", err)
		}
		fmt.Printf("Deleted glossary entry %s.\n", args[0])
		return nil
	},
}

// requireLanguagePair rejects glossary writes without an explicit pair;
// a term pinned under a guessed pair would silently never match a run.
func requireLanguagePair() error {
	if glossarySource == "" {
		return fmt.Errorf("--source language flag is required")
	}
	if glossaryTarget == "" {
		return fmt.Errorf("--target language flag is required")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	glossaryCmd.PersistentFlags().StringVar(&glossaryDBPath, "db", "./data/mdtran.db", "Database path")
	glossaryCmd.PersistentFlags().StringVarP(&glossarySource, "source", "s", "", "Source language code (e.g. en)")
	glossaryCmd.PersistentFlags().StringVarP(&glossaryTarget, "target", "t", "", "Target language code (e.g. uk)")

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
}
