// Package plan loads YAML test plans, validates them against an
// embedded CUE schema, and assembles the generator tree and runner
// test they describe.
package plan

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Plan describes one test run. See schema.cue for the authoritative
// field constraints.
type Plan struct {
	Name        string       `yaml:"name"`
	Nodes       []string     `yaml:"nodes"`
	Concurrency int          `yaml:"concurrency"`
	Seed        int64        `yaml:"seed"`
	TimeLimit   Duration     `yaml:"time_limit"`
	Rate        Duration     `yaml:"rate"`
	Workload    Workload     `yaml:"workload"`
	Nemesis     *NemesisPlan `yaml:"nemesis"`
	FinalReads  bool         `yaml:"final_reads"`
}

// Workload is a weighted register workload over a fixed keyspace.
type Workload struct {
	Keys   []string `yaml:"keys"`
	Reads  int      `yaml:"reads"`
	Writes int      `yaml:"writes"`
	Cas    int      `yaml:"cas"`
}

// NemesisPlan schedules fault injection.
type NemesisPlan struct {
	Faults       []string `yaml:"faults"`
	Interval     Duration `yaml:"interval"`
	Recovery     Duration `yaml:"recovery"`
	MaxOffset    Duration `yaml:"max_offset"`
	StrobePeriod Duration `yaml:"strobe_period"`
}

// Duration is a YAML-friendly time.Duration ("30s", "1m30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// PlanError carries every validation problem found in one plan.
type PlanError struct {
	File     string
	Problems []string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan %s: %d problem(s): %s",
		e.File, len(e.Problems), strings.Join(e.Problems, "; "))
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data against the embedded schema, then decodes it.
// Schema violations come back as a *PlanError collecting every problem,
// not just the first.
func Parse(filename string, data []byte) (*Plan, error) {
	if err := validate(filename, data); err != nil {
		return nil, err
	}

	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, &PlanError{File: filename, Problems: []string{err.Error()}}
	}

	if p.Workload.Reads+p.Workload.Writes+p.Workload.Cas <= 0 {
		return nil, &PlanError{File: filename, Problems: []string{
			"workload: at least one of reads, writes, cas must be positive",
		}}
	}

	// Defaults the schema leaves open.
	if p.Rate == 0 {
		p.Rate = Duration(100 * time.Millisecond)
	}
	if p.Nemesis != nil && p.Nemesis.MaxOffset == 0 {
		p.Nemesis.MaxOffset = Duration(250 * time.Millisecond)
	}
	if p.Nemesis != nil && p.Nemesis.StrobePeriod == 0 {
		p.Nemesis.StrobePeriod = Duration(10 * time.Millisecond)
	}
	return &p, nil
}

// validate unifies the YAML document with #Plan and collects every
// resulting error with its source position.
func validate(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile plan schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Plan"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup #Plan: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return &PlanError{File: filename, Problems: []string{err.Error()}}
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return planError(filename, err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return planError(filename, err)
	}
	return nil
}

// planError flattens a CUE error list into a *PlanError, keeping
// positions where CUE has them.
func planError(filename string, err error) *PlanError {
	out := &PlanError{File: filename}
	for _, e := range cueerrors.Errors(err) {
		msg := e.Error()
		if positions := cueerrors.Positions(e); len(positions) > 0 && positions[0].IsValid() {
			pos := positions[0]
			msg = fmt.Sprintf("%s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), e.Error())
		}
		out.Problems = append(out.Problems, msg)
	}
	if len(out.Problems) == 0 {
		out.Problems = []string{err.Error()}
	}
	return out
}
