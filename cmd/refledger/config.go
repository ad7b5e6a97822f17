package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/service/commission"
	"github.com/nkiryanov/refledger/internal/service/releaser"
	"github.com/nkiryanov/refledger/internal/service/withdrawal"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Time commission stays pending before it becomes withdrawable
	CommissionHold time.Duration

	// Commission policy: fixed or percent, with per level values
	CommissionPolicy string
	CommissionLevel1 string
	CommissionLevel2 string

	// Interval between scheduled release runs
	ReleaseInterval time.Duration
	ReleaseWorkers  int
	ReleaseBatch    int

	// Minimum amount of a withdrawal request
	MinWithdrawal string

	// Telegram bot used for notifications. Notifications are logged only if token is empty
	TelegramToken  string
	TelegramAPIURL string

	// First admin created on start if it does not exist yet. Other admins are created by admins
	AdminUsername string
	AdminPassword string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		Environment:      defaultEnvironment,
		CommissionHold:   commission.DefaultHold,
		CommissionPolicy: commission.PolicyFixed,
		CommissionLevel1: commission.DefaultPolicy.Level1.String(),
		CommissionLevel2: commission.DefaultPolicy.Level2.String(),
		ReleaseInterval:  releaser.DefaultProduceInterval,
		ReleaseWorkers:   releaser.DefaultCountWorkers,
		ReleaseBatch:     releaser.DefaultBatchSize,
		MinWithdrawal:    withdrawal.DefaultMinAmount.String(),
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
		"COMMISSION_HOLD":    setDuration(&c.CommissionHold),
		"COMMISSION_POLICY":  setString(&c.CommissionPolicy),
		"COMMISSION_LEVEL1":  setString(&c.CommissionLevel1),
		"COMMISSION_LEVEL2":  setString(&c.CommissionLevel2),
		"RELEASE_INTERVAL":   setDuration(&c.ReleaseInterval),
		"RELEASE_WORKERS":    setInt(&c.ReleaseWorkers),
		"RELEASE_BATCH_SIZE": setInt(&c.ReleaseBatch),
		"MIN_WITHDRAWAL":     setString(&c.MinWithdrawal),
		"TELEGRAM_BOT_TOKEN": setString(&c.TelegramToken),
		"TELEGRAM_API_URL":   setString(&c.TelegramAPIURL),
		"ADMIN_USERNAME":     setString(&c.AdminUsername),
		"ADMIN_PASSWORD":     setString(&c.AdminPassword),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("refledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.CommissionHold, "commission-hold", c.CommissionHold, "Time commission stays pending")
	fs.StringVar(&c.CommissionPolicy, "commission-policy", c.CommissionPolicy, "Commission policy (fixed, percent)")
	fs.StringVar(&c.CommissionLevel1, "commission-level1", c.CommissionLevel1, "Level 1 commission: amount or percent")
	fs.StringVar(&c.CommissionLevel2, "commission-level2", c.CommissionLevel2, "Level 2 commission: amount or percent")
	fs.DurationVar(&c.ReleaseInterval, "release-interval", c.ReleaseInterval, "Interval between commission release runs")
	fs.IntVar(&c.ReleaseWorkers, "release-workers", c.ReleaseWorkers, "Count of commission release workers")
	fs.IntVar(&c.ReleaseBatch, "release-batch-size", c.ReleaseBatch, "Count of commissions fetched per release batch")
	fs.StringVar(&c.MinWithdrawal, "min-withdrawal", c.MinWithdrawal, "Minimum withdrawal amount")
	fs.StringVar(&c.TelegramToken, "telegram-token", c.TelegramToken, "Telegram bot token for notifications")
	fs.StringVar(&c.TelegramAPIURL, "telegram-api-url", c.TelegramAPIURL, "Telegram Bot API url")
	fs.StringVar(&c.AdminUsername, "admin-username", c.AdminUsername, "Username of the first admin, created on start if missing")
	fs.StringVar(&c.AdminPassword, "admin-password", c.AdminPassword, "Password of the first admin")

	return fs.Parse(args)
}
