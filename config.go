package liteservenv

import "github.com/giantswarm/liteservenv/internal/core"

// managerConfig embeds core.ManagerConfig so options can set its fields
// without core types appearing in the public API.
type managerConfig struct {
	core.ManagerConfig
}

func (c managerConfig) toCoreConfig() core.ManagerConfig {
	return c.ManagerConfig
}
