// Package symbols loads the symbol universe from a YAML file.
package symbols

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoSymbols is returned when the selected exchanges list no symbols.
var ErrNoSymbols = errors.New("no symbols found")

// File is the on-disk layout of the symbol universe:
//
//	exchanges:
//	  HOSE: [FPT, VNM]
//	  HNX: [SHB]
type File struct {
	Exchanges map[string][]string `yaml:"exchanges"`
}

// Load reads path and returns the union of the symbols listed under the
// given exchanges, upper-cased, de-duplicated and sorted. With no exchanges
// every listed exchange is included. Exchange names match case-insensitively.
func Load(path string, exchanges ...string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols file: %w", err)
	}
	return Parse(data, exchanges...)
}

// Parse is Load on an in-memory document.
func Parse(data []byte, exchanges ...string) ([]string, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse symbols file: %w", err)
	}

	byExchange := make(map[string][]string, len(f.Exchanges))
	for name, list := range f.Exchanges {
		key := strings.ToUpper(strings.TrimSpace(name))
		byExchange[key] = append(byExchange[key], list...)
	}

	selected := exchanges
	if len(selected) == 0 {
		for name := range byExchange {
			selected = append(selected, name)
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, ex := range selected {
		list, ok := byExchange[strings.ToUpper(strings.TrimSpace(ex))]
		if !ok {
			return nil, fmt.Errorf("unknown exchange %q", ex)
		}
		for _, s := range list {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoSymbols
	}
	sort.Strings(out)
	return out, nil
}
