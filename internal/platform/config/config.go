// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"flowledger/pkg/domain"
)

// StatsCacheTTL bounds staleness of the cached region/tier projections.
// The underlying reads are full directory scans, so they are not recomputed
// on every request.
var StatsCacheTTL = 5 * time.Minute

// Roles holds the privileged addresses fixed at construction. There is no
// operation that changes them for the lifetime of the process.
type Roles struct {
	Governance domain.Address
	Sentinel   domain.Address
	Oracle     domain.Address
	FeeSink    domain.Address
}

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	Roles Roles

	// InitialSnapshotFeeWei seeds the snapshot fee; governance can change it
	// at runtime within the hard cap.
	InitialSnapshotFeeWei *big.Int

	DatabaseDSN       string
	RedisURL          string
	KafkaBrokers      []string
	KafkaTopic        string
	PaymentChannelURL string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	addr := os.Getenv("FLOWLEDGER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("FLOWLEDGER_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Default for development - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	roles, err := rolesFromEnv()
	if err != nil {
		return Server{}, err
	}

	fee := big.NewInt(0)
	if raw := os.Getenv("FLOWLEDGER_SNAPSHOT_FEE_WEI"); raw != "" {
		parsed, ok := new(big.Int).SetString(raw, 10)
		if !ok || parsed.Sign() < 0 {
			return Server{}, fmt.Errorf("invalid FLOWLEDGER_SNAPSHOT_FEE_WEI %q", raw)
		}
		fee = parsed
	}

	var brokers []string
	if raw := os.Getenv("FLOWLEDGER_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}
	topic := os.Getenv("FLOWLEDGER_KAFKA_TOPIC")
	if topic == "" {
		topic = "flowledger.audit"
	}

	return Server{
		Addr:                  addr,
		JWTSigningKey:         jwtSigningKey,
		Roles:                 roles,
		InitialSnapshotFeeWei: fee,
		DatabaseDSN:           os.Getenv("FLOWLEDGER_DATABASE_DSN"),
		RedisURL:              os.Getenv("FLOWLEDGER_REDIS_URL"),
		KafkaBrokers:          brokers,
		KafkaTopic:            topic,
		PaymentChannelURL:     os.Getenv("FLOWLEDGER_PAYMENT_CHANNEL_URL"),
	}, nil
}

func rolesFromEnv() (Roles, error) {
	parse := func(key string) (domain.Address, error) {
		raw := os.Getenv(key)
		if raw == "" {
			return domain.ZeroAddress, fmt.Errorf("%s is required", key)
		}
		addr, ok := domain.ParseAddress(raw)
		if !ok {
			return domain.ZeroAddress, fmt.Errorf("%s is not a valid address: %q", key, raw)
		}
		if addr == domain.ZeroAddress {
			return domain.ZeroAddress, fmt.Errorf("%s must not be the zero address", key)
		}
		return addr, nil
	}

	governance, err := parse("FLOWLEDGER_GOVERNANCE_ADDR")
	if err != nil {
		return Roles{}, err
	}
	sent, err := parse("FLOWLEDGER_SENTINEL_ADDR")
	if err != nil {
		return Roles{}, err
	}
	oracle, err := parse("FLOWLEDGER_ORACLE_ADDR")
	if err != nil {
		return Roles{}, err
	}
	feeSink, err := parse("FLOWLEDGER_FEE_SINK_ADDR")
	if err != nil {
		return Roles{}, err
	}

	return Roles{Governance: governance, Sentinel: sent, Oracle: oracle, FeeSink: feeSink}, nil
}
