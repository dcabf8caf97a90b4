package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Vision    VisionConfig    `yaml:"vision" mapstructure:"vision"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	HaikuModel  string  `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string  `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// VisionConfig configures PDF page rendering for the vision path.
type VisionConfig struct {
	PdfToPpmPath string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	Resolution   int    `yaml:"resolution" mapstructure:"resolution"`
	Format       string `yaml:"format" mapstructure:"format"`
	Quality      int    `yaml:"quality" mapstructure:"quality"`
	MaxPages     int    `yaml:"max_pages" mapstructure:"max_pages"`
}

// PipelineConfig configures extraction and analysis behavior.
type PipelineConfig struct {
	Strategy            string        `yaml:"strategy" mapstructure:"strategy"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	TextQualityMin      float64       `yaml:"text_quality_min" mapstructure:"text_quality_min"`
	MaxRetries          int           `yaml:"max_retries" mapstructure:"max_retries"`
	StageTimeout        time.Duration `yaml:"stage_timeout" mapstructure:"stage_timeout"`
}

// ServerConfig configures the intake server.
type ServerConfig struct {
	Port       int    `yaml:"port" mapstructure:"port"`
	UploadDir  string `yaml:"upload_dir" mapstructure:"upload_dir"`
	CORSOrigin string `yaml:"cors_origin" mapstructure:"cors_origin"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SUPPLEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "supplement.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upload_dir", "/tmp/supplement-uploads")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.rps", 5.0)
	v.SetDefault("anthropic.burst", 8)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_ocr_model", "pixtral-large-latest")
	v.SetDefault("vision.pdftoppm_path", "pdftoppm")
	v.SetDefault("vision.resolution", 150)
	v.SetDefault("vision.format", "png")
	v.SetDefault("vision.max_pages", 8)
	v.SetDefault("pipeline.strategy", "FALLBACK")
	v.SetDefault("pipeline.confidence_threshold", 0.7)
	v.SetDefault("pipeline.text_quality_min", 0.3)
	v.SetDefault("pipeline.max_retries", 2)
	v.SetDefault("pipeline.stage_timeout", 2*time.Minute)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
