package config

import (
	"time"

	"github.com/mezonai/votechain/store"
)

type LedgerConfig struct {
	Difficulty   int    `yaml:"difficulty" ini:"difficulty"`
	MiningReward int64  `yaml:"mining_reward" ini:"mining_reward"`
	RewardSender string `yaml:"reward_sender" ini:"reward_sender"`
}

type MempoolConfig struct {
	MaxTxs int `yaml:"max_txs" ini:"max_txs"`
}

type MinerConfig struct {
	Enabled    bool          `yaml:"enabled" ini:"enabled"`
	Address    string        `yaml:"address" ini:"address"`
	Interval   time.Duration `yaml:"interval" ini:"interval"`
	MinPending int           `yaml:"min_pending" ini:"min_pending"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr" ini:"listen_addr"`
	// per second limits on POST /transactions, 0 disables a window
	TxRateLimit     int `yaml:"tx_rate_limit" ini:"tx_rate_limit"`
	SenderRateLimit int `yaml:"sender_rate_limit" ini:"sender_rate_limit"`
	GlobalRateLimit int `yaml:"global_rate_limit" ini:"global_rate_limit"`
}

type LogConfig struct {
	File       string `yaml:"file" ini:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" ini:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days" ini:"max_age_days"`
	Stdout     bool   `yaml:"stdout" ini:"stdout"`
	Debug      bool   `yaml:"debug" ini:"debug"`
}

// Config is the node configuration, one section per component
type Config struct {
	Ledger  LedgerConfig      `yaml:"ledger"`
	Mempool MempoolConfig     `yaml:"mempool"`
	Miner   MinerConfig       `yaml:"miner"`
	API     APIConfig         `yaml:"api"`
	Store   store.StoreConfig `yaml:"store"`
	Log     LogConfig         `yaml:"log"`
}
