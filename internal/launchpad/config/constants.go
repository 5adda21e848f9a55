package config

import "time"

// Esplora-compatible provider URLs, mainnet and testnet. The Bitcoin
// service rotates across these for UTXO lookups and tries them in order
// for broadcast and Rune-key resolution.
const (
	BlockstreamMainnetURL = "https://blockstream.info/api"
	MempoolMainnetURL     = "https://mempool.space/api"
	BlockstreamTestnetURL = "https://blockstream.info/testnet/api"
	MempoolTestnetURL     = "https://mempool.space/testnet/api"
)

// Rate limiting (requests per second).
const (
	RateLimitBlockstream = 10
	RateLimitMempool     = 10
)

// Server
const (
	ServerReadTimeout    = 30 * time.Second
	ServerWriteTimeout   = 60 * time.Second
	APITimeout           = 30 * time.Second
	ShutdownTimeout      = 30 * time.Second
	ServerMaxHeaderBytes = 1 << 20
	ServerIdleTimeout    = 120 * time.Second
)

// Logging
const (
	LogDir         = "./logs"
	LogFilePattern = "launchpad-%s-%s.log" // date, level
	LogMaxAgeDays  = 30
)

// Database
const (
	DBPath        = "./data/launchpad.sqlite"
	DBBusyTimeout = 5000 // milliseconds
)

// HD derivation. Taproot key-spend addresses are derived BIP-86 style:
// m/86'/{coin_type}'/0'/0/N.
const (
	BIP86Purpose       = 86
	BTCCoinTypeMainnet = 0
	BTCCoinTypeTestnet = 1
)

// Etching defaults
const (
	DefaultFloorSatVByte        = 2
	DefaultRequiredConfsMainnet = 6
	DefaultRequiredConfsTest    = 1
)
