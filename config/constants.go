package config

import "time"

const (
	DefaultDifficulty   = 4
	DefaultMiningReward = 10
	DefaultRewardSender = "network"

	DefaultMinerInterval   = 10 * time.Second
	DefaultMinerMinPending = 1

	DefaultListenAddr      = ":8080"
	DefaultTxRateLimit     = 50
	DefaultSenderRateLimit = 30
	DefaultGlobalRateLimit = 1000

	DefaultStoreBackend   = "leveldb"
	DefaultStoreDirectory = "./data/chain"
	DefaultStorePath      = "./data/chain.bolt"
	DefaultRedisAddr      = "localhost:6379"

	DefaultLogFile       = "./logs/votechain.log"
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxAgeDays = 7
)

// INI section names
const (
	SectionLedger  = "ledger"
	SectionMempool = "mempool"
	SectionMiner   = "miner"
	SectionAPI     = "api"
	SectionStore   = "store"
	SectionLog     = "log"
)
