package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	AppName   string `mapstructure:"app_name"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Agent lifecycle and dispatch configuration
	Agent AgentConfig `mapstructure:"agent"`

	// Workflow engine configuration
	Workflow WorkflowConfig `mapstructure:"workflow"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	TLSEnabled   bool   `mapstructure:"tls_enabled"`
	TLSCertFile  string `mapstructure:"tls_cert_file"`
	TLSKeyFile   string `mapstructure:"tls_key_file"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// AgentConfig holds agent lifecycle and dispatch tuning
type AgentConfig struct {
	// OfflineTimeoutSeconds: an agent with no heartbeat for this long is
	// demoted to Offline.
	OfflineTimeoutSeconds int `mapstructure:"offline_timeout_seconds"`
	// ReclaimTimeoutSeconds: a task assigned to an agent that has been
	// Offline for this long is reclaimed back onto the queue.
	ReclaimTimeoutSeconds int `mapstructure:"reclaim_timeout_seconds"`
	MaxInstances          int `mapstructure:"max_instances"`
}

// WorkflowConfig holds workflow engine defaults
type WorkflowConfig struct {
	MaxLoopIterations int `mapstructure:"max_loop_iterations"`
	MaxRetryDefault   int `mapstructure:"max_retry_default"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		// Set defaults
		AppName:   "agentorch",
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			TLSEnabled:   false,
		},
		Database: DatabaseConfig{
			Type:     "arangodb",
			Host:     "localhost",
			Port:     8529,
			Database: "agentorch",
			Username: "root",
			SSLMode:  "disable",
		},
		Agent: AgentConfig{
			OfflineTimeoutSeconds: 30,
			ReclaimTimeoutSeconds: 150,
			MaxInstances:          100,
		},
		Workflow: WorkflowConfig{
			MaxLoopIterations: 1000,
			MaxRetryDefault:   0,
		},
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Add config paths
	if configPath != "" {
		if filepath.IsAbs(configPath) {
			viper.SetConfigFile(configPath)
		} else {
			viper.AddConfigPath(filepath.Dir(configPath))
			viper.SetConfigName(filepath.Base(configPath[:len(configPath)-len(filepath.Ext(configPath))]))
		}
	}

	// Add common config paths
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/agentorch")

	// Environment variable support
	viper.SetEnvPrefix("ORCH")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found is acceptable, we'll use defaults and env vars
	}

	// Unmarshal into struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	// Override with environment variables
	if password := os.Getenv("ORCH_DATABASE_PASSWORD"); password != "" {
		config.Database.Password = password
	}
	if port := os.Getenv("ORCH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbPort := os.Getenv("ORCH_DATABASE_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			config.Database.Port = p
		}
	}
	if t := os.Getenv("ORCH_T_OFFLINE"); t != "" {
		if s, err := strconv.Atoi(t); err == nil {
			config.Agent.OfflineTimeoutSeconds = s
		}
	}
	if t := os.Getenv("ORCH_T_RECLAIM"); t != "" {
		if s, err := strconv.Atoi(t); err == nil {
			config.Agent.ReclaimTimeoutSeconds = s
		}
	}
	if m := os.Getenv("ORCH_MAX_WORKFLOW_ITERATIONS"); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			config.Workflow.MaxLoopIterations = n
		}
	}
	if m := os.Getenv("ORCH_MAX_RETRY_DEFAULT"); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			config.Workflow.MaxRetryDefault = n
		}
	}

	return config, nil
}
