package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"payconnect/internal/payconnect"
	"payconnect/internal/payconnect/bulkclix"
	"payconnect/internal/payconnect/data/airtable"
	"payconnect/internal/payconnect/data/database"
	"payconnect/internal/payconnect/hubtel"
	"payconnect/internal/payconnect/ordersmonitor"
	"payconnect/internal/payconnect/service"
)

const (
	serverAddressFlag       = "a"
	serverAddressEnv        = "RUN_ADDRESS"
	portEnv                 = "PORT"
	serverAddressDefault    = ":3000"
	publicBaseURLFlag       = "public-url"
	publicBaseURLEnv        = "PUBLIC_BASE_URL"
	dbConnectionStringFlag  = "d"
	dbConnectionStringEnv   = "DATABASE_URI"
	redisAddressFlag        = "redis"
	redisAddressEnv         = "REDIS_ADDR"
	outboundTimeoutFlag     = "timeout"
	outboundTimeoutEnv      = "OUTBOUND_TIMEOUT"
	outboundTimeoutDefault  = 10 * time.Second
	applyTerminalFlag       = "apply-terminal-status"
	applyTerminalEnv        = "APPLY_TERMINAL_STATUS"
	monitorTickPeriodFlag   = "monitor-tick"
	monitorTickPeriodEnv    = "MONITOR_TICK_PERIOD"
	supportContactFlag      = "support-contact"
	supportContactEnv       = "SUPPORT_CONTACT"
	logLevelFlag            = "log-level"
	logLevelEnv             = "LOG_LEVEL"
	bulkclixAPIKeyEnv       = "BULKCLIX_API_KEY"
	bulkclixMerchantEnv     = "BULKCLIX_MERCHANT"
	bulkclixBaseURLEnv      = "BULKCLIX_BASE_URL"
	hubtelClientIDEnv       = "HUBTEL_CLIENT_ID"
	hubtelClientSecretEnv   = "HUBTEL_CLIENT_SECRET"
	hubtelSenderEnv         = "HUBTEL_SENDER"
	hubtelSenderDefault     = "PayConnect"
	hubtelBaseURLEnv        = "HUBTEL_BASE_URL"
	airtableAPIKeyEnv       = "AIRTABLE_API_KEY"
	airtableBaseEnv         = "AIRTABLE_BASE"
	airtableTableEnv        = "AIRTABLE_TABLE"
	airtableTableDefault    = "Orders"
	airtableBaseURLEnv      = "AIRTABLE_BASE_URL"
	monitorWorkersCount     = 4
	monitorMinOrderAge      = 5 * time.Minute
	shutdownTimeoutDuration = 5 * time.Second
)

var ErrMissingSetting = errors.New("missing required setting")

type Config struct {
	Server          payconnect.Config
	BulkClix        bulkclix.Config
	Hubtel          hubtel.Config
	Airtable        airtable.Config
	DB              database.Config
	Checkout        service.CheckoutConfig
	Reconciler      service.ReconcilerConfig
	Monitor         ordersmonitor.Config
	RedisAddress    string
	Merchant        string
	LogLevel        zapcore.Level
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	return load(flag.CommandLine, os.Args[1:], os.LookupEnv)
}

func load(fs *flag.FlagSet, args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	serverAddress := fs.String(serverAddressFlag, serverAddressDefault, "Server address host:port")
	publicBaseURL := fs.String(publicBaseURLFlag, "", "Public base URL used to build the payment callback URL")
	dbConnectionString := fs.String(dbConnectionStringFlag, "", "PostgreSQL connection string, replaces Airtable when set")
	redisAddress := fs.String(redisAddressFlag, "", "Redis address for cross-instance order locks")
	outboundTimeout := fs.Duration(outboundTimeoutFlag, outboundTimeoutDefault, "Timeout of every outbound call")
	applyTerminalStatus := fs.Bool(applyTerminalFlag, false, "Move orders to Completed or Failed on final notifications")
	monitorTickPeriod := fs.Duration(monitorTickPeriodFlag, 0, "Period of the pending orders status check, 0 disables it")
	supportContact := fs.String(supportContactFlag, service.DefaultSupportContact, "Support contact put in the SMS")
	logLevel := fs.String(logLevelFlag, zapcore.InfoLevel.String(), "Log level")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if valStr, ok := lookupEnv(portEnv); ok && valStr != "" {
		*serverAddress = ":" + valStr
	}
	if valStr, ok := lookupEnv(serverAddressEnv); ok {
		*serverAddress = valStr
	}
	if valStr, ok := lookupEnv(publicBaseURLEnv); ok {
		*publicBaseURL = valStr
	}
	if valStr, ok := lookupEnv(dbConnectionStringEnv); ok {
		*dbConnectionString = valStr
	}
	if valStr, ok := lookupEnv(redisAddressEnv); ok {
		*redisAddress = valStr
	}
	if valStr, ok := lookupEnv(supportContactEnv); ok {
		*supportContact = valStr
	}
	if valStr, ok := lookupEnv(logLevelEnv); ok {
		*logLevel = valStr
	}
	if valStr, ok := lookupEnv(outboundTimeoutEnv); ok {
		val, err := time.ParseDuration(valStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", outboundTimeoutEnv, err)
		}
		*outboundTimeout = val
	}
	if valStr, ok := lookupEnv(monitorTickPeriodEnv); ok {
		val, err := time.ParseDuration(valStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", monitorTickPeriodEnv, err)
		}
		*monitorTickPeriod = val
	}
	if valStr, ok := lookupEnv(applyTerminalEnv); ok {
		val, err := strconv.ParseBool(valStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", applyTerminalEnv, err)
		}
		*applyTerminalStatus = val
	}
	level, err := zapcore.ParseLevel(*logLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	env := func(key string, fallback string) string {
		if valStr, ok := lookupEnv(key); ok && valStr != "" {
			return valStr
		}
		return fallback
	}

	return &Config{
		Server: payconnect.Config{
			ServerAddress:   *serverAddress,
			PublicBaseURL:   *publicBaseURL,
			ShutdownTimeout: shutdownTimeoutDuration,
		},
		BulkClix: bulkclix.Config{
			BaseURL: env(bulkclixBaseURLEnv, bulkclix.DefaultBaseURL),
			APIKey:  env(bulkclixAPIKeyEnv, ""),
			Timeout: *outboundTimeout,
		},
		Hubtel: hubtel.Config{
			BaseURL:      env(hubtelBaseURLEnv, hubtel.DefaultBaseURL),
			ClientID:     env(hubtelClientIDEnv, ""),
			ClientSecret: env(hubtelClientSecretEnv, ""),
			Sender:       env(hubtelSenderEnv, hubtelSenderDefault),
			Timeout:      *outboundTimeout,
		},
		Airtable: airtable.Config{
			BaseURL: env(airtableBaseURLEnv, airtable.DefaultBaseURL),
			APIKey:  env(airtableAPIKeyEnv, ""),
			Base:    env(airtableBaseEnv, ""),
			Table:   env(airtableTableEnv, airtableTableDefault),
			Timeout: *outboundTimeout,
		},
		DB: database.Config{
			ConnectionString:   *dbConnectionString,
			RetryAttemptDelays: []time.Duration{time.Second, 3 * time.Second, 5 * time.Second},
		},
		Checkout: service.CheckoutConfig{
			Timeouts: storeTimeouts(*outboundTimeout),
		},
		Reconciler: service.ReconcilerConfig{
			ApplyTerminalStatus: *applyTerminalStatus,
			LookupAttemptDelays: []time.Duration{500 * time.Millisecond, time.Second},
			SupportContact:      *supportContact,
			Timeouts:            storeTimeouts(*outboundTimeout),
		},
		Monitor: ordersmonitor.Config{
			TickPeriod:        *monitorTickPeriod,
			WorkersCount:      monitorWorkersCount,
			TasksBufferLength: 2 * monitorWorkersCount,
			MinOrderAge:       monitorMinOrderAge,
			ReportFailures:    *applyTerminalStatus,
			StoreTimeout:      2 * *outboundTimeout,
		},
		RedisAddress:    *redisAddress,
		Merchant:        env(bulkclixMerchantEnv, ""),
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeoutDuration,
	}, nil
}

// storeTimeouts derives the store and lock bounds from the outbound timeout.
// An Airtable write reads the record first, so one store call gets two round
// trips. A lock holder makes several store calls and one provider call.
func storeTimeouts(outbound time.Duration) service.Timeouts {
	return service.Timeouts{
		Store:       2 * outbound,
		Lock:        6 * outbound,
		Transaction: 4 * outbound,
	}
}

// UsePostgres reports whether orders are kept in PostgreSQL instead of
// Airtable.
func (c *Config) UsePostgres() bool {
	return c.DB.ConnectionString != ""
}

// Validate fails when a credential the service cannot run without is
// missing.
func (c *Config) Validate() error {
	missing := make([]string, 0)
	if c.BulkClix.APIKey == "" {
		missing = append(missing, bulkclixAPIKeyEnv)
	}
	if c.Hubtel.ClientID == "" {
		missing = append(missing, hubtelClientIDEnv)
	}
	if c.Hubtel.ClientSecret == "" {
		missing = append(missing, hubtelClientSecretEnv)
	}
	if !c.UsePostgres() {
		if c.Airtable.APIKey == "" {
			missing = append(missing, airtableAPIKeyEnv)
		}
		if c.Airtable.Base == "" {
			missing = append(missing, airtableBaseEnv)
		}
	}
	if c.Monitor.TickPeriod < 0 {
		return fmt.Errorf("%s must not be negative", monitorTickPeriodEnv)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingSetting, missing)
	}
	return nil
}
