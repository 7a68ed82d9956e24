package stela

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/do/v2"
	"github.com/stela-network/stela-indexer/core/indexer"
	"github.com/stela-network/stela-indexer/internal/config"
	"github.com/stela-network/stela-indexer/internal/postgres"
	"github.com/stela-network/stela-indexer/modules/stela/api/httphandler"
	"github.com/stela-network/stela-indexer/modules/stela/bot"
	stelapostgres "github.com/stela-network/stela-indexer/modules/stela/repository/postgres"
	"github.com/stela-network/stela-indexer/modules/stela/starknet"
	"github.com/stela-network/stela-indexer/modules/stela/verifier"
	"github.com/stela-network/stela-indexer/modules/stela/webhook"
	"github.com/stela-network/stela-indexer/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// New wires the stela module: postgres repository, starknet client,
// webhook pipeline, REST API and, when enabled, the settlement bot.
func New(injector do.Injector) (indexer.IndexerWorker, error) {
	ctx := do.MustInvoke[context.Context](injector)
	conf := do.MustInvoke[config.Config](injector)
	moduleConf := conf.Modules.Stela

	pg, err := postgres.NewPool(ctx, moduleConf.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, "can't create postgres connection pool")
	}
	repo := stelapostgres.NewRepository(pg)

	client, err := starknet.NewClient(conf.Starknet)
	if err != nil {
		pg.Close()
		return nil, errors.Wrap(err, "can't create starknet client")
	}

	if moduleConf.Webhook.Secret == "" {
		pg.Close()
		return nil, errors.New("webhook secret is required")
	}
	sender, err := webhook.NewSender(moduleConf.Webhook)
	if err != nil {
		pg.Close()
		return nil, errors.Wrap(err, "invalid webhook configuration")
	}

	var settlementBot *bot.Bot
	if moduleConf.Bot.Enabled {
		settlementBot, err = bot.New(repo, client, conf.Starknet.ContractAddress, moduleConf.Bot)
		if err != nil {
			pg.Close()
			return nil, errors.Wrap(err, "can't create settlement bot")
		}
	}

	chainId := moduleConf.ChainId
	if chainId == "" {
		chainId = conf.Network.ChainId()
	}

	httpServer := do.MustInvoke[*fiber.App](injector)
	handler := httphandler.New(repo, verifier.New(client, chainId), NewProcessor(repo), moduleConf.Webhook.Secret)
	if err := handler.Mount(httpServer); err != nil {
		pg.Close()
		return nil, errors.Wrap(err, "can't mount stela API")
	}
	logger.InfoContext(ctx, "Mounted stela HTTP handler")

	return &worker{
		indexer: NewIndexer(client, repo, sender),
		bot:     settlementBot,
		close:   pg.Close,
	}, nil
}

// worker runs the polling indexer and the settlement bot as one unit;
// either one failing stops both.
type worker struct {
	indexer *Indexer
	bot     *bot.Bot
	close   func()
}

func (w *worker) Run(ctx context.Context) error {
	defer w.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.indexer.Run(ctx) })
	if w.bot != nil {
		g.Go(func() error { return w.bot.Run(ctx) })
	}
	return errors.WithStack(g.Wait())
}
