package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/labeler"
)

// ErrInvalid marks a configuration that cannot start a run.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	HistorySize  int
	LeftValue    string
	RightValue   string
	Delimiter    string
	Unlabeled    string
	DecodeErrors string
	LogLevel     string

	DatabaseURL string
	NatsURL     string
	NatsToken   string

	SearchEndpoint string
	SearchUsername string
	SearchPassword string

	SlackBotToken string
	SlackChannel  string

	Port          int
	APIToken      string
	DataDir       string
	LabelFraction float64
	MaxToLabel    int
}

func Load() Config {
	return Config{
		HistorySize:    envInt("LBLR_HISTORY_SIZE", labeler.DefaultHistorySize),
		LeftValue:      envStr("LBLR_LEFT_VALUE", "0"),
		RightValue:     envStr("LBLR_RIGHT_VALUE", "1"),
		Delimiter:      envStr("LBLR_DELIMITER", ","),
		Unlabeled:      envStr("LBLR_UNLABELED", string(labeler.UnlabeledEmpty)),
		DecodeErrors:   envStr("LBLR_DECODE_ERRORS", string(labeler.DecodeAbort)),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		DatabaseURL:    envStr("DATABASE_URL", ""),
		NatsURL:        envStr("NATS_URL", ""),
		NatsToken:      envStr("NATS_TOKEN", ""),
		SearchEndpoint: envStr("SEARCH_ENDPOINT", ""),
		SearchUsername: envStr("SEARCH_USERNAME", ""),
		SearchPassword: envStr("SEARCH_PASSWORD", ""),
		SlackBotToken:  envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:   envStr("SLACK_CHANNEL", ""),
		Port:           envInt("EVAL_PORT", 8760),
		APIToken:       envStr("EVAL_API_TOKEN", ""),
		DataDir:        envStr("EVAL_DATA_DIR", "data"),
		LabelFraction:  envFloat("EVAL_LABEL_FRACTION", 0.1),
		MaxToLabel:     envInt("EVAL_MAX_TO_LABEL", 10),
	}
}

// LabelerOptions maps the labeling settings onto engine options.
func (c Config) LabelerOptions() labeler.Options {
	return labeler.Options{
		Left:         c.LeftValue,
		Right:        c.RightValue,
		HistorySize:  c.HistorySize,
		Unlabeled:    labeler.UnlabeledPolicy(c.Unlabeled),
		DecodeErrors: labeler.DecodePolicy(c.DecodeErrors),
	}
}

func (c Config) Validate() error {
	if err := c.LabelerOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Delimiter == "" {
		return fmt.Errorf("%w: delimiter must not be empty", ErrInvalid)
	}
	if c.LabelFraction < 0 || c.LabelFraction > 1 {
		return fmt.Errorf("%w: label fraction %v outside [0,1]", ErrInvalid, c.LabelFraction)
	}
	if c.MaxToLabel < 0 {
		return fmt.Errorf("%w: max to label must not be negative", ErrInvalid)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
