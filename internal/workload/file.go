package workload

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/t77yq/benchconsole/internal/model"
)

// LoadFile reads workload definitions from a YAML file. A file may hold
// several documents, or one document with a top-level "workloads" list.
func LoadFile(path string) ([]model.Workload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workload file: %w", err)
	}
	defer f.Close()

	workloads, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return workloads, nil
}

// Decode reads workload definitions from r
func Decode(r io.Reader) ([]model.Workload, error) {
	dec := yaml.NewDecoder(r)

	var out []model.Workload
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}

		var list struct {
			Workloads []model.Workload `yaml:"workloads"`
		}
		if err := node.Decode(&list); err == nil && len(list.Workloads) > 0 {
			out = append(out, list.Workloads...)
			continue
		}

		var w model.Workload
		if err := node.Decode(&w); err != nil {
			return nil, fmt.Errorf("failed to decode workload: %w", err)
		}
		out = append(out, w)
	}

	if len(out) == 0 {
		return nil, ErrEmptyFile
	}
	for i, w := range out {
		if w.Name == "" {
			return nil, fmt.Errorf("%w: document %d", ErrUnnamed, i+1)
		}
	}
	return out, nil
}
