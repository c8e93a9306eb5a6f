package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/mezonai/votechain/block"
	"github.com/mezonai/votechain/logx"
	"github.com/mezonai/votechain/store"
)

func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Difficulty:   DefaultDifficulty,
			MiningReward: DefaultMiningReward,
			RewardSender: DefaultRewardSender,
		},
		Miner: MinerConfig{
			Interval:   DefaultMinerInterval,
			MinPending: DefaultMinerMinPending,
		},
		API: APIConfig{
			ListenAddr:      DefaultListenAddr,
			TxRateLimit:     DefaultTxRateLimit,
			SenderRateLimit: DefaultSenderRateLimit,
			GlobalRateLimit: DefaultGlobalRateLimit,
		},
		Store: storeDefaults(),
		Log: LogConfig{
			File:       DefaultLogFile,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Stdout:     true,
		},
	}
}

func storeDefaults() store.StoreConfig {
	return store.StoreConfig{
		Backend:   DefaultStoreBackend,
		Directory: DefaultStoreDirectory,
		Path:      DefaultStorePath,
		RedisAddr: DefaultRedisAddr,
	}
}

// Load reads a YAML (.yml, .yaml) or INI (.ini) file over the defaults and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		err = loadYAML(path, cfg)
	case ".ini":
		err = loadINI(path, cfg)
	default:
		err = fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded config %s | difficulty=%d | store=%s", path, cfg.Ledger.Difficulty, cfg.Store.Backend))
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func loadINI(path string, cfg *Config) error {
	file, err := ini.Load(path)
	if err != nil {
		return err
	}

	sections := []struct {
		name   string
		target interface{}
	}{
		{SectionLedger, &cfg.Ledger},
		{SectionMempool, &cfg.Mempool},
		{SectionMiner, &cfg.Miner},
		{SectionAPI, &cfg.API},
		{SectionStore, &cfg.Store},
		{SectionLog, &cfg.Log},
	}
	for _, s := range sections {
		if !file.HasSection(s.name) {
			continue
		}
		if err := file.Section(s.name).MapTo(s.target); err != nil {
			return fmt.Errorf("map section %s: %w", s.name, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Ledger.Difficulty < 0 || c.Ledger.Difficulty > block.MaxDifficulty {
		return fmt.Errorf("ledger.difficulty must be between 0 and %d, got %d", block.MaxDifficulty, c.Ledger.Difficulty)
	}
	if c.Ledger.RewardSender == "" {
		return fmt.Errorf("ledger.reward_sender cannot be empty")
	}
	if c.Mempool.MaxTxs < 0 {
		return fmt.Errorf("mempool.max_txs must not be negative")
	}
	if c.Miner.Interval <= 0 {
		return fmt.Errorf("miner.interval must be positive")
	}
	if c.Miner.MinPending < 0 {
		return fmt.Errorf("miner.min_pending must not be negative")
	}
	if c.Miner.Enabled && c.Miner.Address == "" {
		return fmt.Errorf("miner.address is required when the miner is enabled")
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr cannot be empty")
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	return nil
}

// LogOptions converts the log section for logx.Init
func (c *Config) LogOptions() logx.Options {
	return logx.Options{
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxAgeDays: c.Log.MaxAgeDays,
		Stdout:     c.Log.Stdout,
		Debug:      c.Log.Debug,
	}
}
