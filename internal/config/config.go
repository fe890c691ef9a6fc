// Package config is used to load the configuration file
package config

import (
	"fmt"
	"reflect"

	"github.com/blacktop/coff2pe/pkg/pe"
	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const DefaultOutput = "out.exe"

type link struct {
	Output       string `mapstructure:"output"`
	StackReserve uint64 `mapstructure:"stack-reserve"`
	StackCommit  uint64 `mapstructure:"stack-commit"`
	Trace        bool   `mapstructure:"trace"`
}

// Config is the configuration struct
type Config struct {
	Link link `mapstructure:"link"`
}

// ImageConfig returns the optional header settings
func (c *Config) ImageConfig() pe.Config {
	return pe.Config{
		StackReserve: c.Link.StackReserve,
		StackCommit:  c.Link.StackCommit,
	}
}

func (c *Config) verify() error {
	if c.Link.Output == "" {
		return fmt.Errorf("config: link.output must be set")
	}
	if c.Link.StackReserve == 0 {
		return fmt.Errorf("config: link.stack-reserve must be greater than 0")
	}
	if c.Link.StackCommit > c.Link.StackReserve {
		return fmt.Errorf("config: link.stack-commit (%s) is larger than link.stack-reserve (%s)",
			humanize.IBytes(c.Link.StackCommit), humanize.IBytes(c.Link.StackReserve))
	}
	return nil
}

// byteSizeHook accepts "1MiB" style strings as well as plain numbers for uint64 fields
func byteSizeHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t.Kind() != reflect.Uint64 {
			return data, nil
		}
		if f.Kind() == reflect.String {
			return humanize.ParseBytes(data.(string))
		}
		return cast.ToUint64E(data)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("link.output", DefaultOutput)
	v.SetDefault("link.stack-reserve", pe.DefaultStackReserve)
	v.SetDefault("link.stack-commit", pe.DefaultStackCommit)
	v.SetDefault("link.trace", true)
}

// Load unmarshals and verifies the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var c *Config

	setDefaults(v)

	if err := v.Unmarshal(&c, viper.DecodeHook(byteSizeHook())); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}
