// Package definition loads named pipeline definitions from YAML.
//
//	pipelines:
//	  shout:
//	    description: upper-cases its input
//	    env:
//	      LC_ALL: C
//	    stages:
//	      - argv: [tr, a-z, A-Z]
//	      - argv: [cat]
//	        stderr: devnull
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/lambda-feedback/procpipe/internal/execution/proc"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoStages      = errors.New("pipeline without stages")
	ErrInvalidStderr = errors.New("invalid stderr redirect")
	ErrInvalidName   = errors.New("invalid pipeline name")
	ErrDuplicateName = errors.New("duplicate pipeline name")
	ErrNoDefinitions = errors.New("no pipeline definitions")
)

// File is the document root of a definitions file.
type File struct {
	Pipelines map[string]Definition `yaml:"pipelines"`
}

// Definition describes one named pipeline.
type Definition struct {
	// Description is a human readable summary, reported by listings
	Description string `yaml:"description"`

	// Dir is the default working directory of all stages
	Dir string `yaml:"dir"`

	// Env is added to the environment of all stages
	Env map[string]string `yaml:"env"`

	// Stages are the commands of the pipeline, in order
	Stages []Stage `yaml:"stages"`
}

// Stage describes one command of a pipeline.
type Stage struct {
	// Argv is the program followed by its arguments
	Argv []string `yaml:"argv"`

	// Dir overrides the working directory of the pipeline
	Dir string `yaml:"dir"`

	// Env is added to the environment, on top of the pipeline's
	Env map[string]string `yaml:"env"`

	// Shell runs the argv, joined by spaces, through /bin/sh
	Shell bool `yaml:"shell"`

	// Stderr is one of pipe (the default), inherit or devnull
	Stderr string `yaml:"stderr"`
}

// Parse decodes a definitions document. Unknown fields are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoDefinitions
		}
		return nil, fmt.Errorf("parse definitions: %w", err)
	}

	return &f, nil
}

// Load reads and builds the definitions file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	catalog := NewCatalog()
	if err := f.AddTo(catalog); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return catalog, nil
}

// AddTo builds every definition of the file and adds it to the catalog.
func (f *File) AddTo(catalog *Catalog) error {
	if len(f.Pipelines) == 0 {
		return ErrNoDefinitions
	}

	for _, name := range sortedKeys(f.Pipelines) {
		def := f.Pipelines[name]

		p, err := def.Pipeline()
		if err != nil {
			return fmt.Errorf("pipeline %q: %w", name, err)
		}

		if err := catalog.Add(name, p, def.Description); err != nil {
			return err
		}
	}

	return nil
}

// Pipeline builds the pipeline descriptor of the definition.
func (d Definition) Pipeline() (*proc.Pipeline, error) {
	if len(d.Stages) == 0 {
		return nil, ErrNoStages
	}

	cmds := make([]*proc.Cmd, len(d.Stages))
	for i, s := range d.Stages {
		cmd, err := s.command(d)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		cmds[i] = cmd
	}

	return proc.NewPipeline(cmds...)
}

func (s Stage) command(d Definition) (*proc.Cmd, error) {
	var opts []proc.Option

	if dir := s.Dir; dir != "" {
		opts = append(opts, proc.WithDir(dir))
	} else if d.Dir != "" {
		opts = append(opts, proc.WithDir(d.Dir))
	}

	if len(d.Env) > 0 || len(s.Env) > 0 {
		env := maps.Clone(d.Env)
		if env == nil {
			env = make(map[string]string, len(s.Env))
		}
		maps.Copy(env, s.Env)

		opts = append(opts, proc.WithEnvPlus(env))
	}

	if s.Shell {
		opts = append(opts, proc.WithShell(true))
	}

	switch s.Stderr {
	case "", "pipe":
	case "inherit":
		opts = append(opts, proc.WithStderr(proc.Inherit))
	case "devnull":
		opts = append(opts, proc.WithStderr(proc.DevNull))
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStderr, s.Stderr)
	}

	return proc.New(s.Argv, opts...)
}
