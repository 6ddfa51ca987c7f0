package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"gridworld/simulator"
)

const sampleYAML = `
kind: simulator_config
def:
  patchSize: 16
  mcmcIterations: 10
  visionRange: 4
  fovDegrees: 90
  collisionPolicy: fcfs
  decayFactor: 0.5
  diffusionRate: 0.1
  seed: 7
  itemTypes:
    - name: grass
      intensityKind: constant
      intensityArgs: [-2.0]
      interactionKind: [piecewiseBox]
      interactionArgs: [[2.0, 4.0, 16.0, 0.0]]
      scentEmission: 1.0
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFromYAMLRoundTrip(t *testing.T) {
	Convey("Given a simulator_config YAML file", t, func() {
		path := writeTempConfig(t, sampleYAML)

		Convey("FromYAML decodes it into a SimulatorConfig", func() {
			cfg, err := FromYAML(path)
			So(err, ShouldBeNil)
			So(cfg.PatchSize, ShouldEqual, int64(16))
			So(cfg.Seed, ShouldEqual, uint64(7))
			So(len(cfg.ItemTypes), ShouldEqual, 1)
			So(cfg.ItemTypes[0].Name, ShouldEqual, "grass")

			Convey("And it validates cleanly against package energy's arity rules", func() {
				So(cfg.Validate(), ShouldBeNil)
			})
		})
	})
}

func TestValidateRejectsArityMismatch(t *testing.T) {
	Convey("Given a config whose interaction arg count is missing an entry", t, func() {
		bad := `
kind: simulator_config
def:
  patchSize: 16
  itemTypes:
    - name: grass
      intensityKind: constant
      intensityArgs: [-2.0]
      interactionKind: []
      interactionArgs: []
`
		path := writeTempConfig(t, bad)
		cfg, err := FromYAML(path)
		So(err, ShouldBeNil)

		Convey("Validate reports the mismatch", func() {
			err := cfg.Validate()
			So(err, ShouldNotBeNil)
		})
	})
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	Convey("Given a config naming an unknown intensity kind", t, func() {
		bad := `
kind: simulator_config
def:
  patchSize: 16
  itemTypes:
    - name: grass
      intensityKind: bogus
      intensityArgs: []
      interactionKind: [zero]
      interactionArgs: [[]]
`
		path := writeTempConfig(t, bad)
		cfg, err := FromYAML(path)
		So(err, ShouldBeNil)

		Convey("Validate reports the unknown kind", func() {
			err := cfg.Validate()
			So(err, ShouldNotBeNil)
		})
	})
}

func TestToCatalogueBuildsWorkingItemTypes(t *testing.T) {
	Convey("Given a validated single-item-type config", t, func() {
		path := writeTempConfig(t, sampleYAML)
		cfg, err := FromYAML(path)
		So(err, ShouldBeNil)
		So(cfg.Validate(), ShouldBeNil)

		Convey("ToCatalogue builds one gibbs.ItemType with working kernels", func() {
			catalogue, err := ToCatalogue(cfg)
			So(err, ShouldBeNil)
			So(len(catalogue), ShouldEqual, 1)
			So(catalogue[0].Name, ShouldEqual, "grass")
			So(catalogue[0].IntensityStationary, ShouldBeTrue)
			So(catalogue[0].Intensity, ShouldNotBeNil)
			So(len(catalogue[0].Interactions), ShouldEqual, 1)
		})

		Convey("ToItemTypeTags round-trips the same enum tags ToCatalogue used", func() {
			tags, err := ToItemTypeTags(cfg)
			So(err, ShouldBeNil)
			So(len(tags), ShouldEqual, 1)
			So(tags[0].Name, ShouldEqual, "grass")
			So(tags[0].IntensityArgs, ShouldResemble, cfg.ItemTypes[0].IntensityArgs)
		})

		Convey("ToSimulatorConfig carries patch geometry and collision policy through", func() {
			simCfg, err := ToSimulatorConfig(cfg)
			So(err, ShouldBeNil)
			So(simCfg.PatchSize, ShouldEqual, cfg.PatchSize)
			So(simCfg.VisionRange, ShouldEqual, cfg.VisionRange)
			So(simCfg.Collision, ShouldEqual, simulator.FirstComeFirstServed)
			So(simCfg.Occlusion(0), ShouldEqual, 0.0)
		})
	})
}

func TestToSimulatorConfigRejectsUnknownCollisionPolicy(t *testing.T) {
	Convey("Given a config naming an unrecognized collision policy", t, func() {
		bad := `
kind: simulator_config
def:
  patchSize: 16
  collisionPolicy: bogus
`
		path := writeTempConfig(t, bad)
		cfg, err := FromYAML(path)
		So(err, ShouldBeNil)

		Convey("ToSimulatorConfig reports the unknown policy", func() {
			_, err := ToSimulatorConfig(cfg)
			So(err, ShouldNotBeNil)
		})
	})
}
