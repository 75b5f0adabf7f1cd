package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/crosslock/relay-go/cmd"
	"github.com/crosslock/relay-go/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "RELAY_CONFIG"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()

	// Overall log level; default is production style
	switch viper.GetString("LOG_LEVEL") {
	case "debug":
		logconfig.ConfigDebugLogger()
	case "info":
		logconfig.ConfigInfoLogger()
	default:
		logconfig.ConfigProductionLogger()
	}

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Relay server configuration file = %s\n", _config_file)

	// See if file exists
	if !cmd.FileExists(_config_file) {
		fmt.Printf("Relay server configuration file not found: %s\n", _config_file)
		return
	}

	// Read from config file.
	success := initializeViper(_config_file)
	if !success {
		return
	}

	// Make the configuration
	rsc := PrepareRelayServerConfig()
	if rsc == nil {
		fmt.Printf("Error loading relay server configuration\n")
		return
	}

	fmt.Println("Starting relay server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartRelayServerAndWait(rsc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// PrepareRelayServerConfig reads configuration variables and returns a RelayServerConfig.
func PrepareRelayServerConfig() *cmd.RelayServerConfig {

	// *** prepare objects that aren't string type ***

	// Parse the source chain list, e.g.
	// SRC_CHAINS = "11155111|sepolia|https://rpc|0xAbc...,421614|arb-sepolia|https://rpc|0xDef..."
	sourceChains, err := cmd.ParseSourceChains(viper.GetString("SRC_CHAINS"))
	if err != nil {
		fmt.Printf("Error parsing SRC_CHAINS: %s\n", err)
		return nil
	}

	// Poll interval in seconds; 0 falls back to the built-in default.
	pollInterval := time.Duration(viper.GetInt("POLL_INTERVAL_SEC")) * time.Second

	// *** end of preparing objects ***

	return &cmd.RelayServerConfig{
		// source side
		SourceChains: sourceChains,
		// destination side
		DestRpcUrl:       viper.GetString("DEST_RPC_URL"),
		DestSignerPriv:   viper.GetString("DEST_SIGNER_PRIV"),
		WrappedTokenAddr: viper.GetString("WRAPPED_TOKEN_ADDR"),
		RewardTokenAddr:  viper.GetString("REWARD_TOKEN_ADDR"),
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// scheduler side
		PollInterval: pollInterval,
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
	}
}
