package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/uiwarden/pkg/types"
	"gopkg.in/yaml.v3"
)

// Mode is the decision applied when no rule matches
type Mode string

const (
	ModeAllowAll     Mode = "ALLOW_ALL"
	ModeDenyUnlisted Mode = "DENY_UNLISTED"
)

// Policy is the process allow/deny document
type Policy struct {
	DefaultMode Mode                `yaml:"defaultMode"`
	AllowList   []types.ProcessRule `yaml:"allowList,omitempty"`
	DenyList    []types.ProcessRule `yaml:"denyList,omitempty"`
	Development Development         `yaml:"development,omitempty"`
}

// Development holds rules that apply only in development mode
type Development struct {
	ExcludePatterns []string `yaml:"excludePatterns,omitempty"`
	AllowPaths      []string `yaml:"allowPaths,omitempty"`
}

// ErrInvalidPolicy wraps every validation failure
var ErrInvalidPolicy = errors.New("invalid policy")

// Default returns a policy that denies anything not explicitly allowed
func Default() *Policy {
	return &Policy{DefaultMode: ModeDenyUnlisted}
}

// Validate checks the default mode and that every rule has a selector
func (p *Policy) Validate() error {
	switch p.DefaultMode {
	case ModeAllowAll, ModeDenyUnlisted:
	default:
		return fmt.Errorf("%w: unknown defaultMode %q", ErrInvalidPolicy, p.DefaultMode)
	}

	check := func(list string, rules []types.ProcessRule) error {
		for i, r := range rules {
			if r.Name == "" && r.Path == "" && r.Pattern == "" {
				return fmt.Errorf("%w: %s[%d] has no name, path or pattern", ErrInvalidPolicy, list, i)
			}
		}
		return nil
	}
	if err := check("allowList", p.AllowList); err != nil {
		return err
	}
	return check("denyList", p.DenyList)
}

// Parse decodes a YAML policy. Unknown fields are rejected and an omitted
// defaultMode means DENY_UNLISTED.
func Parse(data []byte) (*Policy, error) {
	p := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if p.DefaultMode == "" {
		p.DefaultMode = ModeDenyUnlisted
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile reads and parses a YAML policy file
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return Parse(data)
}
