package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/inferloop/contentscore/internal/config"
	"github.com/inferloop/contentscore/pkg/constants"
)

// Flags are command line overrides applied on top of the loaded config.
// Zero values leave the config untouched.
type Flags struct {
	ConfigFile  string
	EnvFile     string
	Port        int
	Host        string
	LogLevel    string
	LogFormat   string
	MetricsPort int
	TLSCert     string
	TLSKey      string
	Version     bool
}

// ParseFlags parses args into Flags
func ParseFlags(args []string, output io.Writer) (*Flags, error) {
	flags := &Flags{}
	fs := flag.NewFlagSet(constants.AppName+"-server", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&flags.ConfigFile, "config", "", "Path to configuration file")
	fs.StringVar(&flags.EnvFile, "env-file", ".env", "Path to a .env file loaded before the environment is read")
	fs.IntVar(&flags.Port, "port", 0, "Server port (overrides server.port)")
	fs.StringVar(&flags.Host, "host", "", "Server host (overrides server.host)")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&flags.LogFormat, "log-format", "", "Log format (json, text)")
	fs.IntVar(&flags.MetricsPort, "metrics-port", 0, "Dedicated Prometheus metrics port")
	fs.StringVar(&flags.TLSCert, "tls-cert", "", "Path to TLS certificate")
	fs.StringVar(&flags.TLSKey, "tls-key", "", "Path to TLS key")
	fs.BoolVar(&flags.Version, "version", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: %s-server [options]\n", constants.AppName)
		fmt.Fprintf(output, "\n%s API server\n\n", constants.AppDescription)
		fmt.Fprintf(output, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// Apply writes the non-zero overrides into cfg
func (f *Flags) Apply(cfg *config.Config) {
	if f.Port != 0 {
		cfg.Server.Port = f.Port
	}
	if f.Host != "" {
		cfg.Server.Host = f.Host
	}
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
	if f.LogFormat != "" {
		cfg.Logging.Format = f.LogFormat
	}
	if f.MetricsPort != 0 {
		cfg.Metrics.Port = f.MetricsPort
	}
	if f.TLSCert != "" {
		cfg.Server.TLSCertFile = f.TLSCert
	}
	if f.TLSKey != "" {
		cfg.Server.TLSKeyFile = f.TLSKey
	}
}

func printVersion(w io.Writer) {
	info := GetBuildInfo()
	fmt.Fprintf(w, "Version: %s\n", info.Version)
	fmt.Fprintf(w, "API Version: %s\n", info.APIVersion)
	fmt.Fprintf(w, "Git Commit: %s\n", info.GitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", info.BuildDate)
	fmt.Fprintf(w, "Go Version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "Platform: %s\n", info.Platform)
}
