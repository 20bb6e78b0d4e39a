// config.go — structured configuration loading for the publisher and
// consumer binaries via viper + godotenv, matching
// shubham-shewale-stock-watchlist-system/pkg/config/config.go's
// defaults-then-env-override pattern. CLI flag parsing is a separate
// concern; callers populate these structs from whatever CLI layer they
// use.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// PublisherConfig holds the publisher binary's runtime options.
type PublisherConfig struct {
	Port            int
	NumSymbols      int
	TickRate        int
	MarketCondition string // "neutral" | "bullish" | "bearish"
	FaultInjection  bool
	SendBufBytes    int
	DiagAddr        string // empty disables the diagnostics endpoint
	LogFilePath     string
	SymbolNames     []string // display-only, indexed by symbol_id; may be nil
}

// ConsumerConfig holds the consumer binary's runtime options.
type ConsumerConfig struct {
	Host              string
	Port              int
	ConnectTimeoutMs  int
	SubscribeSymbols  []int // empty = all
	ReconnectEnabled  bool
	RecvBufBytes      int
	DumpPath          string // optional raw-frame dump file
	DiagAddr          string
	LogFilePath       string
	SymbolNames       []string // display-only, indexed by symbol_id; may be nil
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", 9876)
	v.SetDefault("num_symbols", 100)
	v.SetDefault("tick_rate", 1000)
	v.SetDefault("market_condition", "neutral")
	v.SetDefault("fault_injection", false)
	v.SetDefault("send_buf_bytes", 4<<20)
	v.SetDefault("diag_addr", "")
	v.SetDefault("log_file_path", "")
	v.SetDefault("symbol_names", "")

	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("connect_timeout_ms", 5000)
	v.SetDefault("reconnect_enabled", true)
	v.SetDefault("recv_buf_bytes", 4<<20)
	v.SetDefault("dump_path", "")
}

func newViper(envPrefix string) *viper.Viper {
	_ = godotenv.Load() // optional .env; absence is not an error
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	defaults(v)
	return v
}

// LoadPublisher reads PUBLISHER_*-prefixed environment variables (and a
// .env file, if present) into a PublisherConfig, clamping tick_rate to
// [1, 500000].
func LoadPublisher() (PublisherConfig, error) {
	v := newViper("PUBLISHER")
	cfg := PublisherConfig{
		Port:            v.GetInt("port"),
		NumSymbols:      v.GetInt("num_symbols"),
		TickRate:        clamp(v.GetInt("tick_rate"), 1, 500_000),
		MarketCondition: v.GetString("market_condition"),
		FaultInjection:  v.GetBool("fault_injection"),
		SendBufBytes:    v.GetInt("send_buf_bytes"),
		DiagAddr:        v.GetString("diag_addr"),
		LogFilePath:     v.GetString("log_file_path"),
		SymbolNames:     splitNames(v.GetString("symbol_names")),
	}
	switch cfg.MarketCondition {
	case "neutral", "bullish", "bearish":
	default:
		return cfg, fmt.Errorf("config: invalid market_condition %q", cfg.MarketCondition)
	}
	return cfg, nil
}

// LoadConsumer reads CONSUMER_*-prefixed environment variables into a
// ConsumerConfig.
func LoadConsumer() (ConsumerConfig, error) {
	v := newViper("CONSUMER")
	cfg := ConsumerConfig{
		Host:             v.GetString("host"),
		Port:             v.GetInt("port"),
		ConnectTimeoutMs: v.GetInt("connect_timeout_ms"),
		ReconnectEnabled: v.GetBool("reconnect_enabled"),
		RecvBufBytes:     v.GetInt("recv_buf_bytes"),
		DumpPath:         v.GetString("dump_path"),
		DiagAddr:         v.GetString("diag_addr"),
		LogFilePath:      v.GetString("log_file_path"),
		SymbolNames:      splitNames(v.GetString("symbol_names")),
	}
	if cfg.Port == 0 {
		cfg.Port = 9876
	}
	return cfg, nil
}

// splitNames parses a comma-separated symbol_names env value, indexed
// positionally by symbol_id. An empty string yields nil (no names).
func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
