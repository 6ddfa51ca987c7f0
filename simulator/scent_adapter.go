package simulator

import (
	"gridworld/patch"
	"gridworld/position"
	"gridworld/scent"
)

func scentParamsFor(cfg Config) scent.Params {
	return scent.Params{
		DecayFactor:   cfg.DecayFactor,
		DiffusionRate: cfg.DiffusionRate,
		ItemEmission:  cfg.ItemEmission,
	}
}

func diffuseInPlace(store *patch.Store, coord position.PatchCoord, p *patch.Patch, n int64, params scent.Params, currentTime uint64) {
	scent.Update(store, coord, p, n, params, currentTime)
}
