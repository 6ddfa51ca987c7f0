// Package config loads simulator_config from YAML: a two-stage read where
// viper handles file discovery and decoding into an untyped envelope, and
// gopkg.in/yaml.v3 remarshals the envelope's payload into the strongly-typed
// SimulatorConfig, exactly the pattern reinforcement.FromYaml uses for
// TrainingConfig.
package config

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"gridworld/energy"
	"gridworld/gibbs"
	"gridworld/persist"
	"gridworld/simulator"
)

// OuterConfig is the untyped envelope every config file starts as: a Kind
// discriminator and a Def payload whose shape depends on Kind. Mirrors
// reinforcement.OuterConfig.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// ItemTypeConfig describes one entry of the item-type catalogue as loaded
// from YAML: which energy kernels it uses and their parameters, plus its
// visual and collection properties.
type ItemTypeConfig struct {
	Name            string      `yaml:"name"`
	IntensityKind   string      `yaml:"intensityKind"`
	IntensityArgs   []float64   `yaml:"intensityArgs"`
	InteractionKind []string    `yaml:"interactionKind"` // one per other item type, same order as ItemTypes
	InteractionArgs [][]float64 `yaml:"interactionArgs"` // one arg list per other item type
	ScentEmission   float64     `yaml:"scentEmission"`

	// Occlusion is this item type's visual-occlusion factor in [0,1]: 0
	// lets vision pass through unattenuated, 1 blocks it outright.
	Occlusion float64 `yaml:"occlusion"`

	// BlocksMovement reports whether an item of this type occupying a cell
	// stops an agent from stepping into it.
	BlocksMovement bool `yaml:"blocksMovement"`

	// RequiredCounts maps another item type's name to how many of it an
	// agent must already have collected before collecting this one; Costs
	// maps another item type's name to how many of it are consumed from
	// the agent's counts on collection. Both keyed by name since that's
	// what's stable across a config's own item-type ordering.
	RequiredCounts map[string]int64 `yaml:"requiredCounts"`
	Costs          map[string]int64 `yaml:"costs"`
}

// SimulatorConfig is the fully-typed configuration for constructing a
// simulator, matching spec.md §6's simulator_config.
type SimulatorConfig struct {
	PatchSize      int64            `yaml:"patchSize"`
	MCMCIterations int              `yaml:"mcmcIterations"`
	VisionRange    int64            `yaml:"visionRange"`
	FOVDegrees     float64          `yaml:"fovDegrees"`
	Collision      string           `yaml:"collisionPolicy"` // "none" | "fcfs" | "random"
	DecayFactor    float64          `yaml:"decayFactor"`
	DiffusionRate  float64          `yaml:"diffusionRate"`
	Seed           uint64           `yaml:"seed"`

	// DeletedItemLifetime is how many timesteps a collected/removed item's
	// record is kept (continuing to contribute scent fade) before it's
	// purged from its patch entirely.
	DeletedItemLifetime uint64 `yaml:"deletedItemLifetime"`

	ItemTypes []ItemTypeConfig `yaml:"itemTypes"`
}

func kindArgCountErr(name, field, kind string) error {
	return fmt.Errorf("config: item type %q: unknown %s kind %q", name, field, kind)
}

// intensityKindFromString maps a YAML kind name to its energy.IntensityKind.
func intensityKindFromString(name, s string) (energy.IntensityKind, error) {
	switch s {
	case "zero":
		return energy.IntensityZero, nil
	case "constant":
		return energy.IntensityConstant, nil
	default:
		return 0, kindArgCountErr(name, "intensity", s)
	}
}

// interactionKindFromString maps a YAML kind name to its energy.InteractionKind.
func interactionKindFromString(name, s string) (energy.InteractionKind, error) {
	switch s {
	case "zero":
		return energy.InteractionZero, nil
	case "piecewiseBox":
		return energy.InteractionPiecewiseBox, nil
	case "cross":
		return energy.InteractionCross, nil
	default:
		return 0, kindArgCountErr(name, "interaction", s)
	}
}

// FromYAML reads a simulator_config file at path. See reinforcement.FromYaml
// for the identical two-stage viper-then-yaml.v3 shape this follows.
func FromYAML(path string) (*SimulatorConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	outer := &OuterConfig{}
	if err := vp.Unmarshal(outer); err != nil {
		return nil, fmt.Errorf("config: unmarshal envelope: %w", err)
	}

	spec, err := yaml.Marshal(outer.Def)
	if err != nil {
		return nil, fmt.Errorf("config: remarshal def: %w", err)
	}

	cfg := &SimulatorConfig{}
	if err := yaml.Unmarshal(spec, cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal simulator_config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every item type's kernel arity matches what
// package energy requires, returning the spec.md INVALID_SIMULATOR_CONFIGURATION
// condition as a plain error (translated to the wire Status by package
// protocol/server, which sit above config in the dependency graph).
func (c *SimulatorConfig) Validate() error {
	count := len(c.ItemTypes)
	for _, it := range c.ItemTypes {
		kind, err := intensityKindFromString(it.Name, it.IntensityKind)
		if err != nil {
			return err
		}
		if _, err := energy.NewIntensityFn(kind, it.IntensityArgs); err != nil {
			return fmt.Errorf("config: item type %q: %w", it.Name, err)
		}
		if len(it.InteractionKind) != count || len(it.InteractionArgs) != count {
			return fmt.Errorf("config: item type %q: expected %d interaction entries, got %d kinds / %d arg lists",
				it.Name, count, len(it.InteractionKind), len(it.InteractionArgs))
		}
		for j, kindStr := range it.InteractionKind {
			ikind, err := interactionKindFromString(it.Name, kindStr)
			if err != nil {
				return err
			}
			if _, err := energy.NewInteractionFn(ikind, it.InteractionArgs[j]); err != nil {
				return fmt.Errorf("config: item type %q interaction %d: %w", it.Name, j, err)
			}
		}
	}
	if c.PatchSize <= 0 {
		return fmt.Errorf("config: patchSize must be positive, got %d", c.PatchSize)
	}
	return nil
}

// nameIndex maps each item type's name to its position in c.ItemTypes, for
// resolving the by-name RequiredCounts/Costs maps into index-based rows.
func nameIndex(c *SimulatorConfig) map[string]int {
	out := make(map[string]int, len(c.ItemTypes))
	for i, it := range c.ItemTypes {
		out[it.Name] = i
	}
	return out
}

// resolveCountRow translates one item type's by-name RequiredCounts/Costs
// map into an index-based row the simulator can look up in O(1), returning
// an error if it names an item type the catalogue doesn't have.
func resolveCountRow(self string, byName map[string]int64, index map[string]int) ([]int64, error) {
	if len(byName) == 0 {
		return nil, nil
	}
	row := make([]int64, len(index))
	for name, count := range byName {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("config: item type %q: unknown item type %q in required/cost map", self, name)
		}
		row[i] = count
	}
	return row, nil
}

// collisionPolicyFromString maps a YAML collisionPolicy string to a
// simulator.CollisionPolicy.
func collisionPolicyFromString(s string) (simulator.CollisionPolicy, error) {
	switch s {
	case "", "none":
		return simulator.NoCollisions, nil
	case "fcfs":
		return simulator.FirstComeFirstServed, nil
	case "random":
		return simulator.RandomCollisionPolicy, nil
	default:
		return 0, fmt.Errorf("config: unknown collisionPolicy %q", s)
	}
}

// ToCatalogue builds the gibbs.ItemType catalogue a simulator needs from
// the item-type entries of c, resolving each kernel's enum tag into its
// energy.IntensityFn/InteractionFn closure.
func ToCatalogue(c *SimulatorConfig) ([]gibbs.ItemType, error) {
	count := len(c.ItemTypes)
	out := make([]gibbs.ItemType, count)
	for i, it := range c.ItemTypes {
		ikind, err := intensityKindFromString(it.Name, it.IntensityKind)
		if err != nil {
			return nil, err
		}
		intensity, err := energy.NewIntensityFn(ikind, it.IntensityArgs)
		if err != nil {
			return nil, fmt.Errorf("config: item type %q: %w", it.Name, err)
		}
		if len(it.InteractionKind) != count || len(it.InteractionArgs) != count {
			return nil, fmt.Errorf("config: item type %q: expected %d interaction entries, got %d kinds / %d arg lists",
				it.Name, count, len(it.InteractionKind), len(it.InteractionArgs))
		}
		interactions := make([]energy.InteractionFn, count)
		stationary := make([]bool, count)
		constantZero := make([]bool, count)
		for j, kindStr := range it.InteractionKind {
			kkind, err := interactionKindFromString(it.Name, kindStr)
			if err != nil {
				return nil, err
			}
			fn, err := energy.NewInteractionFn(kkind, it.InteractionArgs[j])
			if err != nil {
				return nil, fmt.Errorf("config: item type %q interaction %d: %w", it.Name, j, err)
			}
			interactions[j] = fn
			stationary[j] = kkind.IsStationary()
			constantZero[j] = kkind.IsConstantZero()
		}
		out[i] = gibbs.ItemType{
			Name:                    it.Name,
			Intensity:               intensity,
			IntensityStationary:     ikind.IsStationary(),
			Interactions:            interactions,
			InteractionStationary:   stationary,
			InteractionConstantZero: constantZero,
		}
	}
	return out, nil
}

// ToItemTypeTags builds the persist.ItemTypeTag slice a World snapshot
// carries for c's item-type catalogue: the enum tags and arguments that
// reconstruct the catalogue without serializing the kernel closures
// themselves.
func ToItemTypeTags(c *SimulatorConfig) ([]persist.ItemTypeTag, error) {
	count := len(c.ItemTypes)
	out := make([]persist.ItemTypeTag, count)
	for i, it := range c.ItemTypes {
		ikind, err := intensityKindFromString(it.Name, it.IntensityKind)
		if err != nil {
			return nil, err
		}
		if len(it.InteractionKind) != count || len(it.InteractionArgs) != count {
			return nil, fmt.Errorf("config: item type %q: expected %d interaction entries, got %d kinds / %d arg lists",
				it.Name, count, len(it.InteractionKind), len(it.InteractionArgs))
		}
		interactionKinds := make([]energy.InteractionKind, count)
		for j, kindStr := range it.InteractionKind {
			kkind, err := interactionKindFromString(it.Name, kindStr)
			if err != nil {
				return nil, err
			}
			interactionKinds[j] = kkind
		}
		out[i] = persist.ItemTypeTag{
			Name:            it.Name,
			IntensityKind:   ikind,
			IntensityArgs:   it.IntensityArgs,
			InteractionKind: interactionKinds,
			InteractionArgs: it.InteractionArgs,
		}
	}
	return out, nil
}

// ToSimulatorConfig builds the deployment-parameter half of a
// simulator.Config from c: patch geometry, collision policy, item-emission
// rates, a per-item-type occlusion closure, and collection gating.
// MovementPolicy/RotationPolicy are left nil (every move/turn allowed),
// matching spec.md's silence on configuring either from simulator_config.
func ToSimulatorConfig(c *SimulatorConfig) (simulator.Config, error) {
	collision, err := collisionPolicyFromString(c.Collision)
	if err != nil {
		return simulator.Config{}, err
	}

	index := nameIndex(c)
	occlusion := make([]float64, len(c.ItemTypes))
	emission := make([]float64, len(c.ItemTypes))
	blocksMovement := make([]bool, len(c.ItemTypes))
	requiredCounts := make([][]int64, len(c.ItemTypes))
	costs := make([][]int64, len(c.ItemTypes))
	for i, it := range c.ItemTypes {
		occlusion[i] = it.Occlusion
		emission[i] = it.ScentEmission
		blocksMovement[i] = it.BlocksMovement
		row, err := resolveCountRow(it.Name, it.RequiredCounts, index)
		if err != nil {
			return simulator.Config{}, err
		}
		requiredCounts[i] = row
		row, err = resolveCountRow(it.Name, it.Costs, index)
		if err != nil {
			return simulator.Config{}, err
		}
		costs[i] = row
	}

	return simulator.Config{
		PatchSize:      c.PatchSize,
		MCMCIterations: c.MCMCIterations,
		VisionRange:    c.VisionRange,
		FOVRadians:     c.FOVDegrees * math.Pi / 180,
		Collision:      collision,
		Occlusion: func(itemType int) float64 {
			if itemType < 0 || itemType >= len(occlusion) {
				return 0
			}
			return occlusion[itemType]
		},
		ItemEmission:        emission,
		DecayFactor:         c.DecayFactor,
		DiffusionRate:       c.DiffusionRate,
		BlocksMovement:      blocksMovement,
		RequiredCounts:      requiredCounts,
		Costs:               costs,
		DeletedItemLifetime: c.DeletedItemLifetime,
		NoOpAllowed:         true,
	}, nil
}
