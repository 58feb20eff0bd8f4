package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/textileio/cli"

	"github.com/textileio/starknet-indexer/buildinfo"
	"github.com/textileio/starknet-indexer/internal/abiregistry"
	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/deploycatalog"
	"github.com/textileio/starknet-indexer/internal/domain"
	"github.com/textileio/starknet-indexer/internal/eventstore"
	"github.com/textileio/starknet-indexer/internal/queryapi"
	"github.com/textileio/starknet-indexer/internal/realtime"
	"github.com/textileio/starknet-indexer/internal/rpcclient"
	"github.com/textileio/starknet-indexer/internal/syncengine"
	"github.com/textileio/starknet-indexer/pkg/logging"
	"github.com/textileio/starknet-indexer/pkg/metrics"
)

// main lets cobra pick which subcommand to run, but never lets cobra (or
// any other parser) touch flag syntax itself: config.go's setupConfig owns
// the one and only call to flag.Parse, exactly as it does in a plain
// single-command binary. Every subcommand has DisableFlagParsing set, so
// cobra only ever inspects os.Args to find the subcommand name and hands
// the rest of the argument list back untouched via RunE's args parameter.
func main() {
	root := &cobra.Command{
		Use:           "indexer",
		Short:         "Starknet event indexer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:                "run",
			Short:              "Sync configured contracts into the event store",
			DisableFlagParsing: true,
			RunE: func(_ *cobra.Command, args []string) error {
				return runIndexer(resolveConfig(args))
			},
		},
		&cobra.Command{
			Use:                "migrate",
			Short:              "Apply pending event store migrations and exit",
			DisableFlagParsing: true,
			RunE: func(_ *cobra.Command, args []string) error {
				return migrateEventStore(resolveConfig(args))
			},
		},
	)

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

// resolveConfig reconstructs os.Args from the subcommand's own remaining
// args (with the subcommand name already stripped by cobra) before handing
// off to setupConfig, which parses flags itself via the stdlib flag package.
func resolveConfig(args []string) (*config, string) {
	os.Args = append([]string{os.Args[0]}, args...)
	conf, dirPath := setupConfig()
	logging.SetupLogger(buildinfo.GitCommit, conf.Log.Debug, conf.Log.Human)
	return conf, dirPath
}

// runIndexer wires every component together, starts the sync engine in the
// background, and blocks until interrupted.
func runIndexer(conf *config, dirPath string) error {
	if err := metrics.SetupInstrumentation(":"+conf.Metrics.Port, "starknet-indexer"); err != nil {
		return fmt.Errorf("setting up instrumentation: %w", err)
	}

	contracts, err := buildContractConfigs(conf.Contracts, syncDefaults{
		StartBlock:   conf.Sync.StartBlock,
		EventTypes:   conf.Sync.EventTypes,
		EventKeys:    conf.Sync.EventKeys,
		MaxRetries:   conf.Sync.MaxRetries,
		ChunkSize:    conf.Sync.ChunkSize,
		SyncInterval: conf.Sync.SyncInterval,
		BatchMode:    conf.Sync.BatchMode,
	})
	if err != nil {
		return fmt.Errorf("building contract configs: %w", err)
	}
	deployments, err := buildDeployments(conf.Deployments)
	if err != nil {
		return fmt.Errorf("building deployments: %w", err)
	}

	rpc := rpcclient.New(conf.RPC.Endpoint)
	registry := abiregistry.New(rpc)

	rawStore, err := eventstore.New(dbURI(conf, dirPath), log.Logger)
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}
	store, err := eventstore.NewInstrumentedStore(rawStore)
	if err != nil {
		return fmt.Errorf("instrumenting event store: %w", err)
	}

	fabric := realtime.New(conf.Realtime.BufferSize)
	engine := syncengine.New(rpc, registry, store, fabric, log.Logger)
	catalog := deploycatalog.New(deployments)
	// queryapi.API is an in-process surface for an embedding host or a future
	// transport layer; nothing in this binary calls it directly.
	_ = queryapi.New(store, rpc, catalog, fabric)

	engineCtx, cancelEngine := context.WithCancel(context.Background())
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(engineCtx, contracts)
	}()

	cli.HandleInterrupt(func() {
		cancelEngine()

		select {
		case err := <-engineDone:
			if err != nil {
				log.Error().Err(err).Msg("sync engine stopped")
			}
		case <-time.After(20 * time.Second):
			log.Warn().Msg("sync engine did not stop in time")
		}

		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("closing event store")
		}
	})
	return nil
}

// migrateEventStore applies the event store's pending schema migrations and
// returns, without starting the sync engine.
func migrateEventStore(conf *config, dirPath string) error {
	store, err := eventstore.New(dbURI(conf, dirPath), log.Logger)
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}
	return store.Close()
}

func dbURI(conf *config, dirPath string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", path.Join(dirPath, conf.DB.Path))
}

// buildContractConfigs converts the raw config entries into
// domain.ContractConfig, normalizing addresses and allow-lists and falling
// each entry's unset fields back to sync's global defaults.
func buildContractConfigs(raw []ContractConfig, sync syncDefaults) ([]domain.ContractConfig, error) {
	out := make([]domain.ContractConfig, 0, len(raw))
	for _, rc := range raw {
		a, err := addr.Normalize(rc.Address)
		if err != nil {
			return nil, fmt.Errorf("normalizing contract address %q: %w", rc.Address, err)
		}

		eventTypes := rc.EventTypeAllow
		if len(eventTypes) == 0 {
			eventTypes = sync.EventTypes
		}
		eventKeys := rc.EventKeyAllow
		if len(eventKeys) == 0 {
			eventKeys = sync.EventKeys
		}
		startBlock := rc.StartBlock
		if startBlock == nil {
			startBlock = sync.StartBlock
		}
		maxRetries := rc.MaxRetries
		if maxRetries == 0 {
			maxRetries = sync.MaxRetries
		}
		chunkSize := rc.ChunkSize
		if chunkSize == 0 {
			chunkSize = sync.ChunkSize
		}
		rawInterval := rc.SyncInterval
		if rawInterval == "" {
			rawInterval = sync.SyncInterval
		}
		batchMode := sync.BatchMode
		if rc.BatchMode != nil {
			batchMode = *rc.BatchMode
		}

		cc := domain.ContractConfig{
			Address:        a,
			StartBlock:     startBlock,
			EventTypeAllow: toSet(eventTypes),
			MaxRetries:     maxRetries,
			ChunkSize:      chunkSize,
			SyncInterval:   rc.syncInterval(rawInterval),
			BatchMode:      batchMode,
		}
		if len(eventKeys) > 0 {
			keys := make(map[string]struct{}, len(eventKeys))
			for _, k := range eventKeys {
				normalized, err := addr.Normalize(k)
				if err != nil {
					return nil, fmt.Errorf("normalizing event key %q for contract %s: %w", k, rc.Address, err)
				}
				keys[normalized.String()] = struct{}{}
			}
			cc.EventKeyAllow = keys
		}
		out = append(out, cc)
	}
	return out, nil
}

// syncDefaults mirrors config.Sync's fields; buildContractConfigs takes this
// rather than *config so it only depends on the values it actually needs.
type syncDefaults struct {
	StartBlock   *uint64
	EventTypes   []string
	EventKeys    []string
	MaxRetries   int
	ChunkSize    uint64
	SyncInterval string
	BatchMode    bool
}

// buildDeployments converts the raw config entries into domain.Deployment.
func buildDeployments(raw []DeploymentConfig) ([]domain.Deployment, error) {
	out := make([]domain.Deployment, 0, len(raw))
	for _, rd := range raw {
		contracts := make(map[addr.Address]struct{}, len(rd.Contracts))
		for _, c := range rd.Contracts {
			a, err := addr.Normalize(c)
			if err != nil {
				return nil, fmt.Errorf("normalizing deployment %q contract %q: %w", rd.ID, c, err)
			}
			contracts[a] = struct{}{}
		}
		status := domain.DeploymentActive
		if rd.Status == string(domain.DeploymentPaused) {
			status = domain.DeploymentPaused
		}
		out = append(out, domain.Deployment{ID: rd.ID, Status: status, Contracts: contracts})
	}
	return out, nil
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
