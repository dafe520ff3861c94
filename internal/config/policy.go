package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the tunable scheduling heuristics. Durations are written as Go
// duration strings ("15m", "168h"); the working window as "HH:MM".
type Policy struct {
	WorkdayStart    string        `yaml:"workday_start"`
	WorkdayEnd      string        `yaml:"workday_end"`
	Step            time.Duration `yaml:"step"`
	Horizon         time.Duration `yaml:"horizon"`
	MaxAlternatives int           `yaml:"max_alternatives"`
	MaxPerExisting  int           `yaml:"max_per_existing"`
	DefaultDuration time.Duration `yaml:"default_duration"`
	Split           SplitPolicy   `yaml:"split"`
}

type SplitPolicy struct {
	MaxBlock  time.Duration `yaml:"max_block"`
	MinBlock  time.Duration `yaml:"min_block"`
	Break     time.Duration `yaml:"break"`
	MaxBlocks int           `yaml:"max_blocks"`
}

func DefaultPolicy() Policy {
	return Policy{
		WorkdayStart:    "08:00",
		WorkdayEnd:      "22:00",
		Step:            15 * time.Minute,
		Horizon:         7 * 24 * time.Hour,
		MaxAlternatives: 3,
		MaxPerExisting:  2,
		DefaultDuration: time.Hour,
		Split: SplitPolicy{
			MaxBlock:  2 * time.Hour,
			MinBlock:  30 * time.Minute,
			Break:     15 * time.Minute,
			MaxBlocks: 8,
		},
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path
// returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse policy file: %w", err)
	}
	if err := p.Normalize(); err != nil {
		return p, err
	}
	return p, nil
}

// Normalize replaces non-positive values with defaults and checks the window.
func (p *Policy) Normalize() error {
	def := DefaultPolicy()
	if p.WorkdayStart == "" {
		p.WorkdayStart = def.WorkdayStart
	}
	if p.WorkdayEnd == "" {
		p.WorkdayEnd = def.WorkdayEnd
	}
	if p.Step <= 0 {
		p.Step = def.Step
	}
	if p.Horizon <= 0 {
		p.Horizon = def.Horizon
	}
	if p.MaxAlternatives <= 0 {
		p.MaxAlternatives = def.MaxAlternatives
	}
	if p.MaxPerExisting <= 0 {
		p.MaxPerExisting = def.MaxPerExisting
	}
	if p.DefaultDuration <= 0 {
		p.DefaultDuration = def.DefaultDuration
	}
	if p.Split.MaxBlock <= 0 {
		p.Split.MaxBlock = def.Split.MaxBlock
	}
	if p.Split.MinBlock <= 0 {
		p.Split.MinBlock = def.Split.MinBlock
	}
	if p.Split.MinBlock > p.Split.MaxBlock {
		p.Split.MinBlock = p.Split.MaxBlock
	}
	if p.Split.Break < 0 {
		p.Split.Break = 0
	}
	if p.Split.MaxBlocks <= 0 {
		p.Split.MaxBlocks = def.Split.MaxBlocks
	}

	start, end, err := p.Window()
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("workday_start %s must be before workday_end %s", p.WorkdayStart, p.WorkdayEnd)
	}
	return nil
}

// Window returns the working window as offsets from local midnight.
func (p Policy) Window() (start, end time.Duration, err error) {
	start, err = clockOffset(p.WorkdayStart)
	if err != nil {
		return 0, 0, fmt.Errorf("workday_start: %w", err)
	}
	end, err = clockOffset(p.WorkdayEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("workday_end: %w", err)
	}
	return start, end, nil
}

func clockOffset(s string) (time.Duration, error) {
	if s == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
