package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	col "github.com/ThalesMMS/BTC-20M-Countdown/collect"
	"github.com/ThalesMMS/BTC-20M-Countdown/collect/webapi"
	est "github.com/ThalesMMS/BTC-20M-Countdown/estimate"
	"github.com/ThalesMMS/BTC-20M-Countdown/issuance"
)

const (
	defaultConfigFileName = "config.yml"
	configFileEnv         = "COUNTDOWN_CONFIG"
	dataDirEnv            = "COUNTDOWN_DATADIR"
)

var (
	defaultCountdownConfig = CountdownConfig{
		Collect: col.Config{
			PollPeriod:       30,
			Mode:             est.Empirical,
			NominalBlockTime: 600,
		},
		Schedule:     issuance.MainnetSchedule,
		TargetSupply: 20000000 * issuance.Coin,
	}
	defaultConfig = config{
		CountdownConfig: defaultCountdownConfig,
		Feeds: webapi.Config{
			PrimaryURL:  "https://mempool.space/api/v1/blocks",
			FallbackURL: "https://blockchain.info/q/getblockcount",
			Timeout:     15,
		},
		AppRPC: AppRPCConfig{
			Host: "localhost",
			Port: "8347",
		},
		DataDir: AppDataDir("countdown", false),
	}
	defaultConfigFile  = filepath.Join(defaultConfig.DataDir, defaultConfigFileName)
	defaultLogFileName = "countdown.log"
)

type config struct {
	CountdownConfig `yaml:",inline"`
	Feeds           webapi.Config `yaml:"feeds" json:"feeds"`
	AppRPC          AppRPCConfig  `yaml:"apprpc" json:"apprpc"`
	DataDir         string        `yaml:"datadir" json:"datadir"`
	LogFile         string        `yaml:"logfile" json:"logfile"`
}

type AppRPCConfig struct {
	Host string `json:"host" yaml:"host"`
	Port string `json:"port" yaml:"port"`
}

// loadConfig loads the config. The input arguments specify the path to the
// config file / data directory.
// They can also be specified through env variables (configFileEnv / dataDirEnv),
// with lower precedence.
// If not specified, they are set to default values.
func loadConfig(configFile, dataDir string) (config, error) {
	cfg := defaultConfig

	if configFile == "" {
		configFile = os.Getenv(configFileEnv)
	}
	if dataDir == "" {
		dataDir = os.Getenv(dataDirEnv)
	}

	if configFile != "" {
		// Config file was specified explicitly, so return an error if it
		// couldn't be read.
		if c, err := os.ReadFile(configFile); err != nil {
			return cfg, err
		} else if err := yaml.Unmarshal(c, &cfg); err != nil {
			return cfg, err
		}
	} else {
		// Check the default config file location. No error if it couldn't be
		// read, but error if the yaml could not be unmarshaled.
		if dataDir == "" {
			configFile = defaultConfigFile
		} else {
			configFile = filepath.Join(dataDir, defaultConfigFileName)
		}
		if c, err := os.ReadFile(configFile); err == nil {
			if err := yaml.Unmarshal(c, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	// dataDir specified by env or input argument takes precedence
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, defaultLogFileName)
	}

	// Create the datadir if not exists
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return cfg, err
	}

	return cfg, nil
}
