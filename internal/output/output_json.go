package output

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/tkjaer/mtr/internal/shared"
)

// JSONOutput writes one JSON snapshot per line to a file or stdout
type JSONOutput struct {
	mu       sync.Mutex
	file     *os.File
	enc      *json.Encoder
	toStdout bool

	written   bool
	lastCycle uint
}

func NewJSONOutput(filename string) (*JSONOutput, error) {
	if filename == "" {
		// Output to stdout
		return &JSONOutput{
			file:     os.Stdout,
			enc:      json.NewEncoder(os.Stdout),
			toStdout: true,
		}, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &JSONOutput{
		file:     f,
		enc:      json.NewEncoder(f),
		toStdout: false,
	}, nil
}

func newJSONOutputWriter(w io.Writer) *JSONOutput {
	return &JSONOutput{enc: json.NewEncoder(w), toStdout: true}
}

func (j *JSONOutput) Update(s shared.Snapshot) {
	j.write(s)
}

// Complete writes the final snapshot unless the same cycle was already written
func (j *JSONOutput) Complete(s shared.Snapshot) {
	j.write(s)
}

func (j *JSONOutput) write(s shared.Snapshot) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.written && j.lastCycle == s.Cycle {
		return
	}
	_ = j.enc.Encode(s)
	j.written = true
	j.lastCycle = s.Cycle
}

func (j *JSONOutput) Close() error {
	if j.toStdout {
		return nil
	}
	return j.file.Close()
}
