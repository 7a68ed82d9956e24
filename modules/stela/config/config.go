package config

import (
	"github.com/stela-network/stela-indexer/internal/postgres"
	"github.com/stela-network/stela-indexer/modules/stela/bot"
	"github.com/stela-network/stela-indexer/modules/stela/webhook"
)

type Config struct {
	Postgres postgres.Config `mapstructure:"postgres"`

	// ChainId is the SNIP-12 domain chain id short string, e.g. `SN_MAIN`.
	// Order and offer hashes are bound to it. Defaults to the chain id of
	// the configured network.
	ChainId string `mapstructure:"chain_id"`

	// Webhook configures event delivery. The same secret authorizes the
	// receiver endpoint.
	Webhook webhook.Config `mapstructure:"webhook"`

	Bot bot.Config `mapstructure:"bot"`
}
