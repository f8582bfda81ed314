// Package wordlist provides embedded name lists.
package wordlist

import (
	"bufio"
	"embed"
	"strings"
)

//go:embed dkim_selectors.txt
var listsFS embed.FS

// DKIMSelectors returns the embedded DKIM selector list in file order.
// Lines are trimmed and empty lines/comments are skipped.
func DKIMSelectors() []string {
	return read("dkim_selectors.txt")
}

func read(name string) []string {
	data, err := listsFS.ReadFile(name)
	if err != nil {
		return nil
	}

	var words []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words
}
