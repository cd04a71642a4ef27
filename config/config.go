// Package config loads revisionable settings from YAML files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mickamy/revisionable"
	"github.com/mickamy/revisionable/internal/logger"
	"github.com/mickamy/revisionable/notify"
)

// EnvPrefix prefixes environment overrides, e.g. REVISIONABLE_DATABASE_DSN.
const EnvPrefix = "REVISIONABLE"

// Config is the complete file configuration.
type Config struct {
	Revisionable GlobalConfig           `mapstructure:"revisionable"`
	Models       map[string]ModelConfig `mapstructure:"models" validate:"dive"`
	Database     DatabaseConfig         `mapstructure:"database"`
	Log          logger.Config          `mapstructure:"log"`
	Events       notify.Config          `mapstructure:"events"`
}

// GlobalConfig maps onto revisionable.Config.
type GlobalConfig struct {
	Enabled      *bool  `mapstructure:"enabled"`
	SystemUserID string `mapstructure:"system_user_id"`
	TimeLayout   string `mapstructure:"time_layout"`
	CleanupBatch int    `mapstructure:"cleanup_batch" validate:"gte=0"`
	Process      string `mapstructure:"process" validate:"omitempty,max=8"`
}

// ModelConfig is the serialisable part of revisionable.ModelConfig.
type ModelConfig struct {
	RevisionEnabled     *bool             `mapstructure:"revision_enabled"`
	HistoryLimit        int               `mapstructure:"history_limit" validate:"gte=0"`
	RevisionCleanup     bool              `mapstructure:"revision_cleanup"`
	CreationsEnabled    bool              `mapstructure:"creations_enabled"`
	ForceDeleteEnabled  bool              `mapstructure:"force_delete_enabled"`
	KeepRevisionOf      []string          `mapstructure:"keep_revision_of"`
	DontKeepRevisionOf  []string          `mapstructure:"dont_keep_revision_of"`
	FormattedFields     map[string]string `mapstructure:"formatted_fields"`
	FormattedFieldNames map[string]string `mapstructure:"formatted_field_names"`
	NullString          string            `mapstructure:"null_string"`
	UnknownString       string            `mapstructure:"unknown_string"`
	Casts               map[string]string `mapstructure:"casts" validate:"dive,oneof=object array json"`
	SoftDelete          bool              `mapstructure:"soft_delete"`
	DeletedAtField      string            `mapstructure:"deleted_at_field"`
	CreatedAtField      string            `mapstructure:"created_at_field"`
}

// DatabaseConfig selects the revision store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite sqlite3 mysql postgres postgresql pgx"`
	DSN    string `mapstructure:"dsn" validate:"required"`
	// Table is the revision table used by the store and created by the
	// migrations, optionally schema-qualified.
	Table string `mapstructure:"table"`
	// Migrate applies the embedded migrations on start-up.
	Migrate bool `mapstructure:"migrate"`
	// Native uses the pgx pool store instead of database/sql for postgres.
	Native bool `mapstructure:"native"`
}

// Load reads path, or revisionable.yaml from the working directory and
// /etc/revisionable when path is empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("revisionable")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/revisionable")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("revisionable.enabled", true)
	v.SetDefault("revisionable.system_user_id", revisionable.DefaultSystemUserID)
	v.SetDefault("revisionable.time_layout", revisionable.DefaultTimeLayout)
	v.SetDefault("revisionable.cleanup_batch", revisionable.DefaultCleanupBatch)
	v.SetDefault("revisionable.process", "")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "revisions.db")
	v.SetDefault("database.table", "revisions")
	v.SetDefault("database.migrate", false)
	v.SetDefault("database.native", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("events.driver", "none")
	v.SetDefault("events.prefix", "")
	v.SetDefault("events.redis.addr", "")
	v.SetDefault("events.amqp.url", "")
	v.SetDefault("events.amqp.exchange", notify.DefaultExchange)
}

// Validate checks struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	for typ, m := range cfg.Models {
		if m.RevisionCleanup && m.HistoryLimit == 0 {
			return fmt.Errorf("models.%s: revision_cleanup requires history_limit", typ)
		}
	}
	return nil
}

// Handler returns the handler configuration.
func (c *Config) Handler(l *zap.Logger) revisionable.Config {
	return revisionable.Config{
		Enabled:      c.Revisionable.Enabled,
		SystemUserID: c.Revisionable.SystemUserID,
		TimeLayout:   c.Revisionable.TimeLayout,
		CleanupBatch: c.Revisionable.CleanupBatch,
		Process:      c.Revisionable.Process,
		Logger:       l,
	}
}

// Model converts m into a revisionable.ModelConfig. Code-only options
// (mutators, relations, redaction) are left empty.
func (m ModelConfig) Model() revisionable.ModelConfig {
	var casts map[string]revisionable.Cast
	if len(m.Casts) > 0 {
		casts = make(map[string]revisionable.Cast, len(m.Casts))
		for k, v := range m.Casts {
			casts[k] = revisionable.Cast(v)
		}
	}
	return revisionable.ModelConfig{
		RevisionEnabled:     m.RevisionEnabled,
		HistoryLimit:        m.HistoryLimit,
		RevisionCleanup:     m.RevisionCleanup,
		CreationsEnabled:    m.CreationsEnabled,
		ForceDeleteEnabled:  m.ForceDeleteEnabled,
		KeepRevisionOf:      m.KeepRevisionOf,
		DontKeepRevisionOf:  m.DontKeepRevisionOf,
		FormattedFields:     m.FormattedFields,
		FormattedFieldNames: m.FormattedFieldNames,
		NullString:          m.NullString,
		UnknownString:       m.UnknownString,
		Casts:               casts,
		SoftDelete:          m.SoftDelete,
		DeletedAtField:      m.DeletedAtField,
		CreatedAtField:      m.CreatedAtField,
	}
}

// Register registers every configured model on h.
func (c *Config) Register(h *revisionable.Handler) error {
	for typ, m := range c.Models {
		if err := h.Register(typ, m.Model()); err != nil {
			return err
		}
	}
	return nil
}
