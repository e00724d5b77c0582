package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const configFileName = "asmocha.config"

// FileConfig is the content of an asmocha.config.{json,yaml,toml} file.
type FileConfig struct {
	ConfigFilePath string   `mapstructure:"-" yaml:"configFilePath,omitempty"`
	RootPath       string   `mapstructure:"rootPath" yaml:"rootPath"`
	TestFileMatch  []string `mapstructure:"testFileMatch" yaml:"testFileMatch"`
	GoBinary       string   `mapstructure:"goBinary" yaml:"goBinary"`
	GoFlags        []string `mapstructure:"goFlags" yaml:"goFlags,omitempty"`
	FailFast       bool     `mapstructure:"failFast" yaml:"failFast"`
	Reporters      []string `mapstructure:"reporters" yaml:"reporters,omitempty"`
}

// CommandLineOptions are the overrides produced by the CLI translator.
type CommandLineOptions struct {
	Reporters []string `yaml:"reporters,omitempty"`
	Only      string   `yaml:"only,omitempty"`
}

// ResolveOptions is the input of Resolve.
type ResolveOptions struct {
	ConfigFile         FileConfig
	CommandLineOptions CommandLineOptions
	PathMatch          []string
}

// ResolvedConfig is the merged configuration every other engine call consumes.
type ResolvedConfig struct {
	ConfigFilePath string   `yaml:"configFilePath,omitempty"`
	RootPath       string   `yaml:"rootPath"`
	TestFileMatch  []string `yaml:"testFileMatch"`
	GoBinary       string   `yaml:"goBinary"`
	GoFlags        []string `yaml:"goFlags,omitempty"`
	FailFast       bool     `yaml:"failFast"`
	Reporters      []string `yaml:"reporters"`
	Only           string   `yaml:"only,omitempty"`
	PathMatch      []string `yaml:"pathMatch,omitempty"`
}

func DefaultFileConfig() FileConfig {
	return FileConfig{
		RootPath:      ".",
		TestFileMatch: []string{"*_test.go"},
		GoBinary:      "go",
		Reporters:     []string{"list"},
	}
}

// ParseConfigFile reads the configuration file at path. An empty path looks
// for asmocha.config.* in the working directory and falls back to defaults
// when none exists; an explicit path must exist. RootPath is resolved
// against the directory of the file, or the working directory.
func ParseConfigFile(path string) (FileConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return FileConfig{}, fmt.Errorf("resolve working directory: %w", err)
	}
	return parseConfigFile(path, cwd)
}

func parseConfigFile(path string, cwd string) (FileConfig, error) {
	defaults := DefaultFileConfig()
	v := viper.New()
	v.SetDefault("rootPath", defaults.RootPath)
	v.SetDefault("testFileMatch", defaults.TestFileMatch)
	v.SetDefault("goBinary", defaults.GoBinary)
	v.SetDefault("failFast", defaults.FailFast)
	v.SetDefault("reporters", defaults.Reporters)

	if path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.AddConfigPath(cwd)
	}

	baseDir := cwd
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return FileConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		baseDir = filepath.Dir(v.ConfigFileUsed())
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("decode config %s: %w", v.ConfigFileUsed(), err)
	}
	cfg.ConfigFilePath = v.ConfigFileUsed()
	if !filepath.IsAbs(cfg.RootPath) {
		cfg.RootPath = filepath.Join(baseDir, cfg.RootPath)
	}
	cfg.RootPath = filepath.Clean(cfg.RootPath)
	return cfg, nil
}

// Resolve merges the file configuration with command line overrides.
// Command line reporters replace the file's list; Only and PathMatch only
// ever come from the command line.
func Resolve(opts ResolveOptions) ResolvedConfig {
	file := opts.ConfigFile
	defaults := DefaultFileConfig()

	resolved := ResolvedConfig{
		ConfigFilePath: file.ConfigFilePath,
		RootPath:       file.RootPath,
		TestFileMatch:  append([]string(nil), file.TestFileMatch...),
		GoBinary:       file.GoBinary,
		GoFlags:        append([]string(nil), file.GoFlags...),
		FailFast:       file.FailFast,
		Reporters:      append([]string(nil), file.Reporters...),
		Only:           opts.CommandLineOptions.Only,
		PathMatch:      append([]string(nil), opts.PathMatch...),
	}
	if resolved.RootPath == "" {
		resolved.RootPath = defaults.RootPath
	}
	if len(resolved.TestFileMatch) == 0 {
		resolved.TestFileMatch = defaults.TestFileMatch
	}
	if resolved.GoBinary == "" {
		resolved.GoBinary = defaults.GoBinary
	}
	if len(opts.CommandLineOptions.Reporters) > 0 {
		resolved.Reporters = append([]string(nil), opts.CommandLineOptions.Reporters...)
	}
	if len(resolved.Reporters) == 0 {
		resolved.Reporters = defaults.Reporters
	}
	return resolved
}
