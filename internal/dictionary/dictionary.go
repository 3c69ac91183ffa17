package dictionary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Dictionary holds user word replacements and learned term frequencies,
// persisted as JSON next to the recordings
type Dictionary struct {
	mu   sync.RWMutex
	path string

	words map[string]string
	freq  map[string]int
}

// dictFile is the JSON layout on disk
type dictFile struct {
	Words         map[string]string `json:"words"`
	FrequentTerms map[string]int    `json:"frequent_terms"`
}

// Load reads the dictionary at path. A missing file yields an empty
// dictionary. A corrupt file also yields a usable empty dictionary, with
// the parse error returned so the caller can log it.
func Load(path string) (*Dictionary, error) {
	d := &Dictionary{
		path:  path,
		words: make(map[string]string),
		freq:  make(map[string]int),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return d, fmt.Errorf("failed to read dictionary file: %w", err)
	}

	var f dictFile
	if err := json.Unmarshal(data, &f); err != nil {
		return d, fmt.Errorf("failed to parse dictionary file: %w", err)
	}

	if f.Words != nil {
		d.words = f.Words
	}
	if f.FrequentTerms != nil {
		d.freq = f.FrequentTerms
	}

	return d, nil
}

// Save writes the dictionary to its file, creating the directory if needed
func (d *Dictionary) Save() error {
	d.mu.RLock()
	f := dictFile{
		Words:         d.words,
		FrequentTerms: d.freq,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	d.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode dictionary: %w", err)
	}

	if dir := filepath.Dir(d.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dictionary directory: %w", err)
		}
	}

	if err := os.WriteFile(d.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write dictionary file: %w", err)
	}

	return nil
}

// AddWord registers a replacement. Keys are case-sensitive.
func (d *Dictionary) AddWord(original, replacement string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.words[original] = replacement
}

// Words returns a copy of the replacement map
func (d *Dictionary) Words() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]string, len(d.words))
	for k, v := range d.words {
		out[k] = v
	}
	return out
}

// Len returns the number of registered replacements
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.words)
}

// Apply rewrites registered words in text. Replacement happens on word
// boundaries only: start/end of text, whitespace, or Japanese punctuation.
// 部分一致は置換しない
func (d *Dictionary) Apply(text string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.words) == 0 {
		return text
	}

	result := text
	for original, replacement := range d.words {
		pattern := fmt.Sprintf(`(^|[\s、。「」])%s($|[\s、。「」])`, regexp.QuoteMeta(original))
		repl := strings.ReplaceAll(replacement, "$", "$$")
		result = regexp.MustCompile(pattern).ReplaceAllString(result, "${1}"+repl+"${2}")
	}

	return result
}

// Learn counts word occurrences in a transcript. Single-character words
// are skipped.
func (d *Dictionary) Learn(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, word := range strings.Fields(text) {
		if utf8.RuneCountInString(word) > 1 {
			d.freq[word]++
		}
	}
}

// TopTerms returns the n most frequent learned terms, most frequent
// first. Ties break alphabetically so the result is stable.
func (d *Dictionary) TopTerms(n int) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	terms := make([]string, 0, len(d.freq))
	for term := range d.freq {
		terms = append(terms, term)
	}

	sort.Slice(terms, func(i, j int) bool {
		if d.freq[terms[i]] != d.freq[terms[j]] {
			return d.freq[terms[i]] > d.freq[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if n < 0 {
		n = 0
	}
	if n < len(terms) {
		terms = terms[:n]
	}
	return terms
}
