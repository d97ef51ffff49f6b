// Package config loads run options the way the teacher's cmd/falcon/
// main.go composes viper + godotenv: environment/flags layered over an
// optional config file, read once at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// RunOptions are the engine-facing knobs of the run request's "options"
// object (§6): headless mode, the default per-operation web timeout, the
// procedure recursion cap, and the testid: shorthand attribute.
type RunOptions struct {
	Headless        bool
	WebTimeout      time.Duration
	RecursionDepth  int
	TestIDAttribute string
	RateLimitPerSec float64
}

// Defaults returns the engine's built-in defaults (§3, §4.6).
func Defaults() RunOptions {
	return RunOptions{
		Headless:        true,
		WebTimeout:      30 * time.Second,
		RecursionDepth:  64,
		TestIDAttribute: "data-testid",
	}
}

// Load reads .env (if present), then a config file named cfgFile (or
// ".testblocks/config" discovered via viper's search path if empty),
// then environment variables, layering onto Defaults(). Matches the
// teacher's initConfig()'s load order: dotenv, then viper config file,
// then AutomaticEnv.
func Load(cfgFile string) (RunOptions, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".testblocks")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}
	v.SetEnvPrefix("TESTBLOCKS")
	v.AutomaticEnv()

	opts := Defaults()
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return opts, fmt.Errorf("config: %w", err)
		}
	}

	if v.IsSet("headless") {
		opts.Headless = v.GetBool("headless")
	}
	if v.IsSet("web_timeout_ms") {
		opts.WebTimeout = time.Duration(v.GetInt("web_timeout_ms")) * time.Millisecond
	}
	if v.IsSet("recursion_depth") {
		opts.RecursionDepth = v.GetInt("recursion_depth")
	}
	if v.IsSet("test_id_attribute") {
		opts.TestIDAttribute = v.GetString("test_id_attribute")
	}
	if v.IsSet("rate_limit_per_sec") {
		opts.RateLimitPerSec = v.GetFloat64("rate_limit_per_sec")
	}
	return opts, nil
}
