package runs

import (
	"bufio"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultBatchSize is the number of identifiers read from a file at a time.
const DefaultBatchSize = 100

// BatchSource yields identifiers in batches. A non-nil error ends the sequence.
type BatchSource = iter.Seq2[[]string, error]

// ReadBatches yields the non-blank, trimmed lines of r in batches of size (zero means [DefaultBatchSize]).
// The last batch may be shorter; an empty input yields nothing.
func ReadBatches(r io.Reader, size int) BatchSource {
	if size <= 0 {
		size = DefaultBatchSize
	}

	return func(yield func([]string, error) bool) {
		scanner := bufio.NewScanner(r)
		batch := make([]string, 0, size)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			batch = append(batch, line)
			if len(batch) == size {
				if !yield(batch, nil) {
					return
				}
				batch = make([]string, 0, size)
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, goerr.Wrap(err, "failed to read identifiers"))
			return
		}
		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}

// ReadBatchesFromFile is [ReadBatches] over the file at path. The file is opened when iteration starts and
// closed when it ends.
func ReadBatchesFromFile(path string, size int) BatchSource {
	return func(yield func([]string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, goerr.Wrap(err, "failed to open identifier file", goerr.V("path", path)))
			return
		}
		defer f.Close()

		for batch, err := range ReadBatches(f, size) {
			if !yield(batch, err) {
				return
			}
		}
	}
}
