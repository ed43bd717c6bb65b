// Package config loads persistent settings and the BOUT_* environment
// variables that parameterize a run: model endpoint, device, chunking
// geometry, retry budget, and storage locations.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Config keys.
const (
	KeyOutputDir     = "output-dir"
	KeyModelEndpoint = "model-endpoint"
	KeyLanguage      = "language"
	KeyDevice        = "device"
	KeyLogLevel      = "log-level"
	KeyChunkDuration = "chunk-duration"
	KeyOverlap       = "overlap"
	KeyMinChunk      = "min-chunk"
	KeyMaxRetries    = "max-retries"
	KeyJobsDir       = "jobs-dir"
	KeyTempDir       = "temp-dir"
)

// Environment variable names read by Load.
const (
	EnvOutputDir       = "BOUT_OUTPUT_DIR"
	EnvModelEndpoint   = "BOUT_MODEL_ENDPOINT"
	EnvLanguage        = "BOUT_LANGUAGE"
	EnvDevice          = "BOUT_DEVICE"
	EnvLogLevel        = "BOUT_LOG_LEVEL"
	EnvChunkDuration   = "BOUT_CHUNK_DURATION"
	EnvOverlap         = "BOUT_OVERLAP"
	EnvMinChunk        = "BOUT_MIN_CHUNK"
	EnvMaxRetries      = "BOUT_MAX_RETRIES"
	EnvJobsDir         = "BOUT_JOBS_DIR"
	EnvTempDir         = "BOUT_TEMP_DIR"
	EnvFFmpegPath      = "FFMPEG_PATH"
	EnvHuggingFaceToken = "HF_TOKEN"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultModelEndpoint = "http://localhost:8000"
	DefaultDevice        = "auto"
	DefaultLogLevel      = "info"
	DefaultChunkDuration = 300.0
	DefaultOverlap       = 10.0
	DefaultMinChunk      = 30.0
	DefaultMaxRetries    = 3
	DefaultFFmpegPath    = "ffmpeg"
)

// File system permissions.
const (
	dirPerm  os.FileMode = 0750
	filePerm os.FileMode = 0644
)

// Sentinel errors for error handling with errors.Is().
var (
	// ErrInvalidSyntax is returned when the config file has invalid syntax.
	ErrInvalidSyntax = errors.New("invalid config syntax")
	// ErrInvalidKey is returned when a config key contains invalid characters.
	ErrInvalidKey = errors.New("invalid config key")
	// ErrNotWritable is returned when a directory is not writable.
	ErrNotWritable = errors.New("directory not writable")
	// ErrNotDirectory is returned when a path is not a directory.
	ErrNotDirectory = errors.New("path is not a directory")
)

// Config holds the resolved run parameters: file-based settings merged
// with BOUT_* environment variable overrides and hardcoded defaults.
type Config struct {
	OutputDir     string
	ModelEndpoint string
	Language      string
	Device        string
	LogLevel      string
	ChunkDuration float64
	Overlap       float64
	MinChunk      float64
	MaxRetries    int
	JobsDir       string
	TempDir       string
	FFmpegPath    string
	HFToken       string
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/bout.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bout"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "bout"), nil
}

// path returns the full path to the config file.
func path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config"), nil
}

// Load reads the configuration file and the BOUT_* environment variables
// on top of the documented defaults. Precedence for every field is: file
// value, then environment variable, then default.
func Load() (Config, error) {
	cfg := Config{
		ModelEndpoint: DefaultModelEndpoint,
		Device:        DefaultDevice,
		LogLevel:      DefaultLogLevel,
		ChunkDuration: DefaultChunkDuration,
		Overlap:       DefaultOverlap,
		MinChunk:      DefaultMinChunk,
		MaxRetries:    DefaultMaxRetries,
		FFmpegPath:    DefaultFFmpegPath,
	}

	p, err := path()
	if err != nil {
		return cfg, err
	}

	data, err := parseFile(p)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.OutputDir = data[KeyOutputDir]
	if v, ok := data[KeyModelEndpoint]; ok {
		cfg.ModelEndpoint = v
	}
	if v, ok := data[KeyLanguage]; ok {
		cfg.Language = v
	}
	if v, ok := data[KeyDevice]; ok {
		cfg.Device = v
	}
	if v, ok := data[KeyLogLevel]; ok {
		cfg.LogLevel = v
	}
	if v, ok := data[KeyChunkDuration]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ChunkDuration = f
		}
	}
	if v, ok := data[KeyOverlap]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Overlap = f
		}
	}
	if v, ok := data[KeyMinChunk]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinChunk = f
		}
	}
	if v, ok := data[KeyMaxRetries]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	cfg.JobsDir = data[KeyJobsDir]
	cfg.TempDir = data[KeyTempDir]

	// Environment variables apply only to keys the config file leaves unset.
	if v := os.Getenv(EnvOutputDir); v != "" && data[KeyOutputDir] == "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv(EnvModelEndpoint); v != "" && data[KeyModelEndpoint] == "" {
		cfg.ModelEndpoint = v
	}
	if v := os.Getenv(EnvLanguage); v != "" && data[KeyLanguage] == "" {
		cfg.Language = v
	}
	if v := os.Getenv(EnvDevice); v != "" && data[KeyDevice] == "" {
		cfg.Device = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" && data[KeyLogLevel] == "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvChunkDuration); v != "" && data[KeyChunkDuration] == "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ChunkDuration = f
		}
	}
	if v := os.Getenv(EnvOverlap); v != "" && data[KeyOverlap] == "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Overlap = f
		}
	}
	if v := os.Getenv(EnvMinChunk); v != "" && data[KeyMinChunk] == "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinChunk = f
		}
	}
	if v := os.Getenv(EnvMaxRetries); v != "" && data[KeyMaxRetries] == "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvJobsDir); v != "" && data[KeyJobsDir] == "" {
		cfg.JobsDir = v
	}
	if v := os.Getenv(EnvTempDir); v != "" && data[KeyTempDir] == "" {
		cfg.TempDir = v
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		cfg.FFmpegPath = v
	}
	cfg.HFToken = os.Getenv(EnvHuggingFaceToken)

	if cfg.JobsDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.JobsDir = filepath.Join(home, ".local", "share", "bout", "jobs")
		}
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	return cfg, nil
}

// parseFile reads a key=value config file.
// Format: one key=value per line, # comments, empty lines ignored.
func parseFile(path string) (map[string]string, error) {
	f, err := os.Open(path) // #nosec G304 -- config path is constructed from home dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %s:%d: %q", ErrInvalidSyntax, path, lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		data[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

// Save writes a single key=value to the config file.
// Creates the config directory and file if they don't exist.
// Preserves existing key=value pairs but discards comments.
func Save(key, value string) error {
	if strings.ContainsAny(key, "=\n\r") || key == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	configPath, err := path()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, dirPerm); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	existing, _ := parseFile(configPath)
	if existing == nil {
		existing = make(map[string]string)
	}

	existing[key] = value

	return writeFile(configPath, existing)
}

// writeFile writes the config map to a file.
// Keys are sorted alphabetically for deterministic output.
func writeFile(path string, data map[string]string) error {
	// #nosec G302 G304 -- config file with standard permissions, path from home dir
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, data[key]); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	return nil
}

// Get reads a single value from the config file.
// Returns empty string if the key doesn't exist.
func Get(key string) (string, error) {
	p, err := path()
	if err != nil {
		return "", err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	return data[key], nil
}

// List returns all config values as a map.
func List() (map[string]string, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	return data, nil
}

// ResolveOutputPath resolves the final output path using the following precedence:
//  1. If output is absolute, use it as-is
//  2. If output is relative and outputDir is set, join them
//  3. If output is empty, use defaultName in outputDir (or cwd if no outputDir)
func ResolveOutputPath(output, outputDir, defaultName string) string {
	if output != "" && filepath.IsAbs(output) {
		return filepath.Clean(output)
	}

	if output != "" {
		if outputDir != "" {
			return filepath.Clean(filepath.Join(outputDir, output))
		}
		return filepath.Clean(output)
	}

	if outputDir != "" {
		return filepath.Clean(filepath.Join(outputDir, defaultName))
	}
	return filepath.Clean(defaultName)
}

// ExpandPath expands ~ or ~/path to the user's home directory.
// Returns the path unchanged if expansion fails or if it doesn't start with ~.
func ExpandPath(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// EnsureExtension adds ext to path if path has no extension.
func EnsureExtension(path, ext string) string {
	if filepath.Ext(path) == "" {
		return path + ext
	}
	return path
}

// EnsureOutputDir validates a directory path and creates it if it doesn't exist.
func EnsureOutputDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output-dir cannot be empty")
	}

	dir = ExpandPath(dir)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, dirPerm); err != nil { // #nosec G301 -- user output dir
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	testFile := filepath.Join(dir, ".bout-write-test")
	f, err := os.Create(testFile) // #nosec G304 -- path is constructed from validated dir
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotWritable, dir)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(testFile)
		return fmt.Errorf("%w: %s", ErrNotWritable, dir)
	}
	_ = os.Remove(testFile)

	return nil
}
