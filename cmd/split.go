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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/mdtran/internal/markdown"
	"github.com/valpere/mdtran/internal/splitter"
)

var (
	splitInputFile string
	splitChunkSize int
	splitPreview   bool
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Show how a document splits into chunks",
	Long: `Split a Markdown document at safe structural boundaries and list the
resulting chunks without translating anything.

Useful for checking where cut points land before spending API calls.

Example:
  mdtran split -i README.md --chunk-size 200 --preview`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateInputFile(splitInputFile); err != nil {
			return err
		}

		raw, err := os.ReadFile(splitInputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		split, err := splitter.New(splitChunkSize)
		if err != nil {
			return err
		}
		chunks := split.Split(string(raw), splitInputFile)

		docStats := markdown.Stats(raw)
		fmt.Printf("%s: %d chunks, %d headings, %d code blocks, %d tables\n\n",
			filepath.Base(splitInputFile), len(chunks),
			docStats.Headings, docStats.CodeBlocks, docStats.Tables)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLINES\tRANGE\tFIRST LINE")
		for _, c := range chunks {
			fmt.Fprintf(w, "%s\t%d\t%d-%d\t%s\n",
				c.ID, c.LineCount(), c.StartLine, c.EndLine-1, chunkPreview(c.Content, splitPreview))
		}
		return w.Flush()
	},
}

// chunkPreview returns the first non-empty line of a chunk, optionally
// reduced to plain text, trimmed to table width.
func chunkPreview(content string, plain bool) string {
	if plain {
		content = markdown.ToPlainText([]byte(content))
	}
	line := content
	for line != "" {
		rest := ""
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line, rest = line[:i], line[i+1:]
		}
		if strings.TrimSpace(line) != "" {
			break
		}
		line = rest
	}
	line = strings.TrimSpace(line)
	if len(line) > 60 {
		line = line[:57] + "..."
	}
	return line
}

func init() {
	rootCmd.AddCommand(splitCmd)

	splitCmd.Flags().StringVarP(&splitInputFile, "input", "i", "", "Input Markdown file (required)")
	splitCmd.Flags().IntVar(&splitChunkSize, "chunk-size", splitter.DefaultChunkSize, "Lines per chunk")
	splitCmd.Flags().BoolVar(&splitPreview, "preview", false, "Show plain-text previews instead of raw Markdown")

	splitCmd.MarkFlagRequired("input")
}
