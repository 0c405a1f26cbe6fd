package patcher

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrNoInstructionAtPC = errors.New("no instruction starts at pc")

// Finding is an arithmetic finding addressed by the program counter of
// the unsafe instruction in the original code.
type Finding struct {
	PC        uint64 `yaml:"pc"`
	Kind      string `yaml:"kind"`
	Validated *bool  `yaml:"validated,omitempty"` // defaults to true
}

// IsValidated reports whether the finding was confirmed by the analyzer.
func (f Finding) IsValidated() bool {
	return f.Validated == nil || *f.Validated
}

type findingsFile struct {
	Findings []Finding `yaml:"findings"`
}

// ParseFindings decodes a YAML findings document. Both a top-level list and
// a mapping with a "findings" key are accepted.
func ParseFindings(data []byte) ([]Finding, error) {
	var list []Finding
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var file findingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding findings: %w", err)
	}
	return file.Findings, nil
}

// LoadFindings reads a YAML findings file.
func LoadFindings(path string) ([]Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	findings, err := ParseFindings(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return findings, nil
}
