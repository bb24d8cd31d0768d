package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/canvaspipe/internal/registry"
)

// LoadStagesFile loads a stage table from a .cue file, or from every .cue
// file of a directory unified together.
func LoadStagesFile(path string) ([]registry.Stage, error) {
	v, err := loadValue(path)
	if err != nil {
		return nil, err
	}
	return CompileStages(v)
}

// LoadRegistry loads a stage table and validates it as a registry.
func LoadRegistry(path string) (*registry.Registry, error) {
	stages, err := LoadStagesFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(stages...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

func loadValue(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("stage definitions: %w", err)
	}

	cfg := &load.Config{}
	args := []string{"."}
	if info.IsDir() {
		cfg.Dir = path
	} else {
		if filepath.Ext(path) != ".cue" {
			return cue.Value{}, fmt.Errorf("stage definitions: %s is not a .cue file", path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return cue.Value{}, fmt.Errorf("stage definitions: %w", err)
		}
		cfg.Dir = filepath.Dir(abs)
		args = []string{filepath.Base(abs)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("stage definitions: no CUE instances loaded from %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return value, nil
}
