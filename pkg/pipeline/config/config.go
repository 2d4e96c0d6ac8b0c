// Package config loads the stage settings of a pipeline from a file or the environment.
//
// The only knobs are the ones a stage has: its ordering, its concurrency and its backpressure.
//
//	stages:
//	  - name: download
//	    concurrency: 8
//	  - name: resize
//	    ordered: true
//	    concurrency: 4
//	    backpressure: 16
package config

import (
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/askiada/go-stages/pkg/pipeline"
)

// EnvPrefix prefixes the environment variables overriding the configuration: STAGES_NAME,
// STAGES_SOURCE_BUFFER, STAGES_LOG_LEVEL, STAGES_LOG_FORMAT, and for every stage already listed in
// the configuration STAGES_STAGE_<NAME>_ORDERED, STAGES_STAGE_<NAME>_CONCURRENCY and
// STAGES_STAGE_<NAME>_BACKPRESSURE, the name upper-cased with dashes turned into underscores.
const EnvPrefix = "STAGES"

var ErrStageNotFound = errors.New("stage not found")

// Stage holds the settings of one stage.
type Stage struct {
	Name         string `mapstructure:"name"`
	Ordered      bool   `mapstructure:"ordered"`
	Concurrency  int    `mapstructure:"concurrency"`
	Backpressure int    `mapstructure:"backpressure"`
}

// Policy returns the concurrency policy of the stage.
func (s Stage) Policy() pipeline.Policy {
	if s.Ordered {
		return pipeline.Ordered(s.Concurrency)
	}

	return pipeline.Unordered(s.Concurrency)
}

// Options returns the stage options. A zero backpressure keeps the default of the policy.
func (s Stage) Options() []pipeline.StageOption {
	if s.Backpressure == 0 {
		return nil
	}

	return []pipeline.StageOption{pipeline.Backpressure(s.Backpressure)}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the configuration of a pipeline.
type Config struct {
	Name         string  `mapstructure:"name"`
	SourceBuffer int     `mapstructure:"source_buffer"`
	Log          Log     `mapstructure:"log"`
	Stages       []Stage `mapstructure:"stages"`
}

// Stage returns the settings of the stage called name.
func (c *Config) Stage(name string) (Stage, error) {
	for _, s := range c.Stages {
		if s.Name == name {
			return s, nil
		}
	}

	return Stage{}, errors.Wrap(ErrStageNotFound, name)
}

// Options returns the pipeline options set by the configuration. logOutput receives the logs.
func (c *Config) Options(logOutput io.Writer) ([]pipeline.Option, error) {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", c.Log.Level)
	}

	var logger zerolog.Logger
	if strings.EqualFold(c.Log.Format, "console") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: logOutput})
	} else {
		logger = zerolog.New(logOutput)
	}

	opts := []pipeline.Option{
		pipeline.WithName(c.Name),
		pipeline.WithLogger(logger.Level(level).With().Timestamp().Logger()),
	}
	if c.SourceBuffer != 0 {
		opts = append(opts, pipeline.WithSourceBuffer(c.SourceBuffer))
	}

	return opts, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "pipeline")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("source_buffer", 0)
}

// New returns a viper instance reading the environment, with the defaults set.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// Load decodes the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	err := v.Unmarshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode configuration")
	}
	for i := range cfg.Stages {
		overrideStage(v, &cfg.Stages[i])
	}

	return cfg, nil
}

// overrideStage applies the stage.<name>.* keys, which only the environment sets.
func overrideStage(v *viper.Viper, s *Stage) {
	key := "stage." + strings.ToLower(s.Name) + "."
	if v.IsSet(key + "ordered") {
		s.Ordered = v.GetBool(key + "ordered")
	}
	if v.IsSet(key + "concurrency") {
		s.Concurrency = v.GetInt(key + "concurrency")
	}
	if v.IsSet(key + "backpressure") {
		s.Backpressure = v.GetInt(key + "backpressure")
	}
}

// LoadFile reads a configuration file. The format is deduced from its extension.
func LoadFile(path string) (*Config, error) {
	v := New()
	v.SetConfigFile(path)
	err := v.ReadInConfig()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read configuration file %s", path)
	}

	return Load(v)
}

// LoadReader reads a configuration in the given format, e.g. "yaml".
func LoadReader(r io.Reader, format string) (*Config, error) {
	v := New()
	v.SetConfigType(format)
	err := v.ReadConfig(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read configuration")
	}

	return Load(v)
}

// LoadEnvFile adds the variables of an env file to the environment, where they override the
// configuration files. Variables already set are kept. A missing file is ignored.
func LoadEnvFile(path string) error {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	err = godotenv.Load(path)
	if err != nil {
		return errors.Wrapf(err, "unable to load env file %s", path)
	}

	return nil
}
