package main

import (
	"encoding/json"
	"flag"
	"os"
	"path"
	"strings"
	"time"

	"github.com/omeid/uconfig"
	"github.com/omeid/uconfig/plugins"
	"github.com/omeid/uconfig/plugins/file"
	"github.com/rs/zerolog/log"
)

// configFilename is the filename of the config file automatically loaded
// from the directory named by --dir.
var configFilename = "config.json"

type config struct {
	Dir string // defaults to "", not the --dir flag's default.

	RPC struct {
		Endpoint string `default:""`
	}

	DB struct {
		Path string `default:"indexer.db"` // relative to Dir.
	}

	Realtime struct {
		BufferSize int `default:"1024"`
	}

	Metrics struct {
		Port string `default:"9090"`
	}
	Log struct {
		Human bool `default:"false"`
		Debug bool `default:"false"`
	}

	// Sync holds the global defaults every ContractConfig falls back to when
	// it leaves the matching field unset, mirroring the flat, single-endpoint
	// configuration a small deployment needs without repeating itself per
	// contract.
	Sync struct {
		StartBlock   *uint64  `default:""`
		EventTypes   []string `default:""`
		EventKeys    []string `default:""`
		MaxRetries   int      `default:"3"`
		ChunkSize    uint64   `default:"2000"`
		SyncInterval string   `default:"2s"`
		BatchMode    bool     `default:"false"`
	}

	Contracts   []ContractConfig
	Deployments []DeploymentConfig
}

// ContractConfig describes one contract to sync, as read from config.json.
// Any field left at its zero value falls back to the matching Sync default.
type ContractConfig struct {
	Address        string   `default:""`
	StartBlock     *uint64  `default:""`
	EventTypeAllow []string `default:""`
	EventKeyAllow  []string `default:""`
	MaxRetries     int      `default:"0"`
	ChunkSize      uint64   `default:"0"`
	SyncInterval   string   `default:""`
	BatchMode      *bool    `default:""`
}

// DeploymentConfig names a group of contracts the query API and realtime
// fabric can be scoped to, as read from config.json.
type DeploymentConfig struct {
	ID        string   `default:""`
	Status    string   `default:"active"`
	Contracts []string `default:""`
}

// setupConfig parses --dir and loads config.json from the resolved
// directory. It calls flag.Parse itself, exactly once per process, so
// os.Args must already have any subcommand name stripped from it by the
// time this runs (main strips it before dispatch).
func setupConfig() (*config, string) {
	dirFlag := flag.String("dir", "${HOME}/.starknet-indexer", "Directory where the configuration and DB exist")
	flag.Parse()

	dirPath := os.ExpandEnv(*dirFlag)

	_ = os.MkdirAll(dirPath, 0o755)

	var plugins []plugins.Plugin
	fullPath := path.Join(dirPath, configFilename)
	configFileBytes, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		log.Info().Str("config_file_path", fullPath).Msg("config file not found")
	} else if err != nil {
		log.Fatal().Str("config_file_path", fullPath).Err(err).Msg("opening config file")
	} else {
		fileStr := os.ExpandEnv(string(configFileBytes))
		plugins = append(plugins, file.NewReader(strings.NewReader(fileStr), json.Unmarshal))
	}

	conf := &config{}
	c, err := uconfig.Classic(&conf, file.Files{}, plugins...)
	if err != nil {
		c.Usage()
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	return conf, dirPath
}

// syncInterval parses raw, falling back to the syncengine default on an
// empty or malformed value.
func (cc ContractConfig) syncInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("contract", cc.Address).Str("sync_interval", raw).
			Msg("invalid sync_interval, using default")
		return 0
	}
	return d
}
