package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hogsim/internal/backfill"
	"hogsim/internal/behavior"
	"hogsim/internal/schedule"
)

// PolicyFile groups every tunable constant. Sections left out of the YAML
// file keep their defaults.
type PolicyFile struct {
	Schedule schedule.Policy `yaml:"schedule"`
	Behavior behavior.Policy `yaml:"behavior"`
	Backfill backfill.Policy `yaml:"backfill"`
}

// DefaultPolicyFile returns the built-in constants.
func DefaultPolicyFile() *PolicyFile {
	return &PolicyFile{
		Schedule: *schedule.DefaultPolicy(),
		Behavior: behavior.DefaultPolicy(),
		Backfill: backfill.DefaultPolicy(),
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path
// returns the defaults. Maps given in the file replace the default maps
// rather than merging into them.
func LoadPolicy(path string) (*PolicyFile, error) {
	pf := DefaultPolicyFile()
	if path == "" {
		return pf, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	defaults := pf.Behavior
	pf.Behavior.PlanWeights = nil
	pf.Behavior.ScenarioWeights = nil
	if err := yaml.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}
	if pf.Behavior.PlanWeights == nil {
		pf.Behavior.PlanWeights = defaults.PlanWeights
	}
	if pf.Behavior.ScenarioWeights == nil {
		pf.Behavior.ScenarioWeights = defaults.ScenarioWeights
	}

	if err := pf.Validate(); err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return pf, nil
}

// Validate checks every section.
func (pf *PolicyFile) Validate() error {
	var errs []error
	if err := pf.Schedule.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	if err := pf.Behavior.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("behavior: %w", err))
	}
	if err := pf.Backfill.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("backfill: %w", err))
	}
	return errors.Join(errs...)
}
