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
)

// maxInputSize caps input documents at 100 MiB.
const maxInputSize = 100 << 20

// validateInputFile rejects paths that are missing, not regular files,
// or too large, and warns about extensions this tool is not meant for.
func validateInputFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat input file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("input %q is not a regular file", path)
	}
	if info.Size() > maxInputSize {
		return fmt.Errorf("input file too large: %d bytes (limit is %d)", info.Size(), maxInputSize)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
	default:
		fmt.Fprintf(os.Stderr, "Warning: input file %q does not have a .md, .markdown or .txt extension\n", path)
	}
	return nil
}

// defaultOutputPath derives the output file name from the input path and
// the target language: doc.md translated to uk becomes doc_uk.md.
func defaultOutputPath(inputPath, targetLang string) string {
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, targetLang, ext))
}

// checkAPIKey warns when an OpenRouter endpoint is paired with a key
// that does not look like an OpenRouter key.
func checkAPIKey(baseURL, key string) {
	if strings.Contains(baseURL, "openrouter.ai") && !strings.HasPrefix(key, "sk-or-v1-") {
		fmt.Fprintln(os.Stderr, "Warning: API key does not start with sk-or-v1-, which OpenRouter keys use")
	}
}
