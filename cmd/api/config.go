package main

import (
	"encoding/json"
	"os"
	"path"

	"github.com/joho/godotenv"
	"github.com/omeid/uconfig"
	"github.com/rs/zerolog/log"
)

// configFilename is the filename of the config file automatically loaded.
var configFilename = "config.json"

// envFilename holds secrets loaded into the environment before the config is read.
var envFilename = ".env"

type config struct {
	Dir string `default:""` // Working directory; empty means ${HOME}/.durablevote

	HTTP struct {
		Port string `default:"8080"`

		RateLimInterval       string `default:"1s"`
		MaxRequestPerInterval uint64 `default:"10"`

		NonceRateLimInterval       string `default:"1m"`
		NonceMaxRequestPerInterval uint64 `default:"5"`
	}
	Metrics struct {
		Port string `default:"9090"`
	}
	Log struct {
		Human bool   `default:"false"`
		Level string `default:"info"`
	}

	Authority struct {
		// PrivateKey is the base58 secret key paying for and authorizing nonce accounts.
		PrivateKey string `default:"" env:"AUTHORITY_PRIVATE_KEY"`
	}
	Ledger struct {
		Endpoint       string `default:"https://api.devnet.solana.com"`
		APIKey         string `default:"" env:"LEDGER_API_KEY"`
		Commitment     string `default:"confirmed"`
		ConfirmTimeout string `default:"1m"`
		PollInterval   string `default:"500ms"`
		ProgramID      string `default:""`
	}
	Store struct {
		Backend string `default:"sqlite"` // sqlite or supabase

		SQLite struct {
			Path string `default:""` // Empty means ${Dir}/votes.db
		}
		Supabase struct {
			URL    string `default:"" env:"SUPABASE_URL"`
			APIKey string `default:"" env:"SUPABASE_API_KEY"`
			Table  string `default:"durableTransactions"`
		}
	}
	Nonces struct {
		Policy          string `default:"fifo"`
		Lamports        uint64 `default:"0"` // Zero means the rent-exempt minimum
		PerTransaction  int    `default:"4"`
		MaxPerRequest   int    `default:"64"`
		Recycle         bool   `default:"false"`
		ReservationTTL  string `default:"2m"`
		SweeperInterval string `default:"10s"`
	}
	Backup struct {
		Enabled     bool   `default:"false"`
		Dir         string `default:""` // Empty means ${Dir}/backups
		Frequency   string `default:"4h"`
		Compression bool   `default:"true"`
		Vacuum      bool   `default:"true"`
		KeepFiles   int    `default:"5"`
		RestoreFrom string `default:""` // Seeds an empty SQLite store from a backup file or URL
	}
	TallyCacheSize int `default:"1024"`
}

func setupConfig() (*config, string) {
	conf := &config{}

	// Missing .env files are fine; secrets may come from the real environment.
	if err := godotenv.Load(envFilename); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("loading .env file")
	}

	dir := os.Getenv("DURABLEVOTE_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal().Err(err).Msg("getting home dir")
		}
		dir = path.Join(home, ".durablevote")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("creating working dir")
	}

	confFiles := uconfig.Files{
		{path.Join(dir, configFilename), json.Unmarshal},
	}
	c, err := uconfig.Classic(&conf, confFiles)
	if err != nil {
		c.Usage()
		os.Exit(1)
	}
	if conf.Dir != "" {
		dir = conf.Dir
	}

	return conf, dir
}
