package config

// Package config provides a reusable loader for section node configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"sectioncore/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a section node process.
type Config struct {
	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	// Section carries the parameters specific to this module: which
	// section this node belongs to, its chunk store bounds, and how to
	// reach the external collaborators (transfer engine, membership
	// service) it depends on.
	Section struct {
		SectionID          string `mapstructure:"section_id" json:"section_id"`
		ChunkDir           string `mapstructure:"chunk_dir" json:"chunk_dir"`
		MaxBytes           int64  `mapstructure:"max_bytes" json:"max_bytes"`
		SectionCount       uint64 `mapstructure:"section_count" json:"section_count"`
		RewardKeypairPath  string `mapstructure:"reward_keypair_path" json:"reward_keypair_path"`
		TransferEngineAddr string `mapstructure:"transfer_engine_addr" json:"transfer_engine_addr"`
		MembershipAddr     string `mapstructure:"membership_addr" json:"membership_addr"`
	} `mapstructure:"section" json:"section"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up matching environment variables

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SECTIONNODE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SECTIONNODE_ENV", ""))
}
