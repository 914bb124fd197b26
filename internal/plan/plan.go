// Package plan loads TOML run plans and executes them with the strand
// combinators. A plan names a mode, its parameters and a list of synthetic
// tasks that sleep, then succeed or fail.
package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bpradana/strand/logging"
)

// Mode selects the combinator a plan runs with.
type Mode string

const (
	ModeSeries        Mode = "series"
	ModeParallel      Mode = "parallel"
	ModeParallelLimit Mode = "parallel-limit"
	ModeWhilst        Mode = "whilst"
	ModeDoWhilst      Mode = "do-whilst"
	ModeUntil         Mode = "until"
	ModeDoUntil       Mode = "do-until"
	ModeForever       Mode = "forever"
	ModeInterval      Mode = "interval"
)

var modes = map[Mode]bool{
	ModeSeries: true, ModeParallel: true, ModeParallelLimit: true,
	ModeWhilst: true, ModeDoWhilst: true, ModeUntil: true, ModeDoUntil: true,
	ModeForever: true, ModeInterval: true,
}

var (
	// ErrUnknownMode indicates the plan's mode is not supported.
	ErrUnknownMode = errors.New("plan: unknown mode")
	// ErrNoTasks indicates the plan defines no tasks.
	ErrNoTasks = errors.New("plan: no tasks defined")
	// ErrUnbounded indicates a repeat plan that can never finish.
	ErrUnbounded = errors.New("plan: repeat plan needs a limit or a failing task")
)

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("plan: invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Plan is the decoded form of a plan file.
type Plan struct {
	Name       string     `toml:"name"`
	Mode       Mode       `toml:"mode"`
	Limit      int        `toml:"limit"`
	Interval   Duration   `toml:"interval"`
	Repeat     int        `toml:"repeat"`
	Dispatcher string     `toml:"dispatcher"`
	Workers    int        `toml:"workers"`
	LogLevel   string     `toml:"log_level"`
	Tasks      []TaskSpec `toml:"tasks"`
}

// TaskSpec describes one synthetic task.
type TaskSpec struct {
	Name      string   `toml:"name"`
	Sleep     Duration `toml:"sleep"`
	Value     string   `toml:"value"`
	Fail      string   `toml:"fail"`
	FailAfter int      `toml:"fail_after"`
}

// Load decodes the plan file at path.
func Load(path string) (*Plan, error) {
	var p Plan
	meta, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, fmt.Errorf("plan: decode %s: %w", path, err)
	}
	if err := checkUndecoded(meta); err != nil {
		return nil, fmt.Errorf("plan: %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = path
	}
	return &p, p.Validate()
}

// Parse decodes a plan from TOML text.
func Parse(data string) (*Plan, error) {
	var p Plan
	meta, err := toml.Decode(data, &p)
	if err != nil {
		return nil, fmt.Errorf("plan: decode: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	return &p, p.Validate()
}

func checkUndecoded(meta toml.MetaData) error {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, key := range undecoded {
		keys = append(keys, key.String())
	}
	return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}

// Validate checks the plan can run and terminate.
func (p *Plan) Validate() error {
	if p.Mode == "" {
		p.Mode = ModeSeries
	}
	if !modes[p.Mode] {
		return fmt.Errorf("%w: %s", ErrUnknownMode, p.Mode)
	}
	if len(p.Tasks) == 0 {
		return ErrNoTasks
	}
	if p.Mode == ModeParallelLimit && p.Limit <= 0 {
		return fmt.Errorf("plan: mode %s needs a positive limit", p.Mode)
	}
	if p.Mode == ModeInterval && p.Interval.Duration <= 0 {
		return fmt.Errorf("plan: mode %s needs a positive interval", p.Mode)
	}
	if (p.Mode == ModeForever || p.Mode == ModeInterval) && p.Limit <= 0 && p.Tasks[0].Fail == "" {
		return ErrUnbounded
	}
	if p.Limit < 0 || p.Repeat < 0 || p.Workers < 0 {
		return errors.New("plan: limit, repeat and workers must not be negative")
	}
	switch p.Dispatcher {
	case "", "goroutine", "inline", "pool", "bounded":
	default:
		return fmt.Errorf("plan: unknown dispatcher %q", p.Dispatcher)
	}
	if p.LogLevel != "" {
		if _, err := logging.ParseLevel(p.LogLevel); err != nil {
			return err
		}
	}
	return nil
}
