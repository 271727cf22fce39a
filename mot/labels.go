package mot

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadLabels reads class names one per line, the line index being the
// class ID.  Trailing blank lines are ignored.
func ReadLabels(r io.Reader) ([]string, error) {

	var labels []string

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels: %w", err)
	}

	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}

	return labels, nil
}

// LoadLabels reads class names from a text file
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening labels: %w", err)
	}

	defer f.Close()

	return ReadLabels(f)
}
