package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"rie.dev/pkg/rie/internal/domain"
	m "rie.dev/pkg/rie/internal/model"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "rie"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName       = "output"
	verboseFlagName      = "verbose"
	excludeFlagName      = "exclude"
	includeFlagName      = "include"
	parallelFlagName     = "parallel"
	topKFlagName         = "top-k"
	traceFlagName        = "trace"
	traceModeFlagName    = "trace-mode"
	traceTimeoutFlagName = "trace-timeout"
	bootTimeoutFlagName  = "boot-timeout"
	targetFlagName       = "target"
	scriptFlagName       = "script"
	tiersFlagName        = "tiers"
	dryRunFlagName       = "dry-run"
	dirFlagName          = "dir"

	includeConfigKey        = "scan.include"
	excludeConfigKey        = "scan.exclude"
	parallelConfigKey       = "scan.parallel"
	topKConfigKey           = "scan.top_k"
	packageRootsConfigKey   = "scan.package_roots"
	traceEnabledKey         = "trace.enabled"
	traceModeKey            = "trace.mode"
	traceTimeoutKey         = "trace.timeout"
	traceBootTimeoutKey     = "trace.boot_timeout"
	targetConfigKey         = "scan.target"
	traceInterpreterKey     = "trace.interpreter"
	traceWritableKey        = "trace.writable_paths"
	tracePermittedHostsKey  = "trace.permitted_hosts"
	traceEnvFileKey         = "trace.env_file"
	engineRootsKey          = "engine.roots"
	surfacesKey             = "surfaces"
	allowKey                = "cross_surface.allow"
	domainsKey              = "domains"
	archivePathsKey         = "archive_paths"
	quarantineTiersKey      = "quarantine.tiers"
	quarantineDirConfigKey  = "quarantine.dir"
	defaultTraceTimeoutText = "10s"
	defaultBootTimeoutText  = "15s"

	envPrefix = "RIE"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".rie.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

// configFileErr holds a rie.yaml that exists but cannot be read. Commands report it from
// loadConfig, since init runs before any command can fail.
var configFileErr error

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults()

	configFileErr = readConfigFile(filepath.Join(configFolderPath, configFileName))
}

// readConfigFile loads path into viper. A missing file is not an error.
func readConfigFile(path string) error {
	viper.SetConfigFile(path)

	err := viper.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return &m.ConfigurationError{Field: path, Reason: err.Error()}
}

func setDefaults() {
	defaults := m.DefaultConfig()

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, domain.DefaultArtifactPath)

	viper.SetDefault(includeConfigKey, []string{})
	viper.SetDefault(excludeConfigKey, []string{})
	viper.SetDefault(parallelConfigKey, runtime.NumCPU())
	viper.SetDefault(topKConfigKey, defaults.TopK)
	viper.SetDefault(targetConfigKey, defaults.Target)
	viper.SetDefault(packageRootsConfigKey, []string{})

	viper.SetDefault(traceEnabledKey, false)
	viper.SetDefault(traceModeKey, string(defaults.Trace.Mode))
	viper.SetDefault(traceTimeoutKey, defaultTraceTimeoutText)
	viper.SetDefault(traceBootTimeoutKey, defaultBootTimeoutText)
	viper.SetDefault(traceInterpreterKey, defaults.Trace.Interpreter)
	viper.SetDefault(traceWritableKey, []string{})
	viper.SetDefault(tracePermittedHostsKey, []string{})
	viper.SetDefault(traceEnvFileKey, "")

	viper.SetDefault(engineRootsKey, []string{})
	viper.SetDefault(surfacesKey, map[string]string{})
	viper.SetDefault(allowKey, []m.SurfacePair{})
	viper.SetDefault(domainsKey, []m.DomainRule{})
	viper.SetDefault(archivePathsKey, []string{})
	viper.SetDefault(quarantineTiersKey, []string{string(m.TierGhost)})
	viper.SetDefault(quarantineDirConfigKey, "")

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

// loadConfig resolves the analysis configuration from flags, environment, rie.yaml and
// defaults, in that order. Structural checks are left to Config.Validate.
func loadConfig() (m.Config, error) {
	cfg := m.DefaultConfig()

	if configFileErr != nil {
		return cfg, configFileErr
	}

	cfg.Include = viper.GetStringSlice(includeConfigKey)
	cfg.Exclude = viper.GetStringSlice(excludeConfigKey)
	cfg.Parallel = viper.GetInt(parallelConfigKey)
	cfg.TopK = viper.GetInt(topKConfigKey)
	cfg.Target = strings.TrimSpace(viper.GetString(targetConfigKey))
	cfg.PackageRoots = toPaths(viper.GetStringSlice(packageRootsConfigKey))

	cfg.Trace = m.TraceConfig{
		Enabled:        viper.GetBool(traceEnabledKey),
		Mode:           m.TraceMode(strings.ToLower(viper.GetString(traceModeKey))),
		Timeout:        viper.GetDuration(traceTimeoutKey),
		BootTimeout:    viper.GetDuration(traceBootTimeoutKey),
		Interpreter:    viper.GetString(traceInterpreterKey),
		WritablePaths:  viper.GetStringSlice(traceWritableKey),
		PermittedHosts: viper.GetStringSlice(tracePermittedHostsKey),
		EnvFile:        viper.GetString(traceEnvFileKey),
	}

	cfg.EngineRoots = toPaths(viper.GetStringSlice(engineRootsKey))
	cfg.Surfaces = m.SurfacesFromMap(viper.GetStringMapString(surfacesKey))
	cfg.ArchivePaths = viper.GetStringSlice(archivePathsKey)

	if err := viper.UnmarshalKey(allowKey, &cfg.Allow); err != nil {
		return cfg, &m.ConfigurationError{Field: allowKey, Reason: err.Error()}
	}

	if err := viper.UnmarshalKey(domainsKey, &cfg.Domains); err != nil {
		return cfg, &m.ConfigurationError{Field: domainsKey, Reason: err.Error()}
	}

	tiers, err := parseTiers(viper.GetStringSlice(quarantineTiersKey))
	if err != nil {
		return cfg, err
	}

	cfg.Quarantine = m.QuarantineConfig{Tiers: tiers, Dir: viper.GetString(quarantineDirConfigKey)}

	return cfg, nil
}

func toPaths(values []string) []m.Path {
	out := make([]m.Path, 0, len(values))
	for _, v := range values {
		out = append(out, m.CleanPath(v))
	}

	return out
}

// parseTiers accepts "T2,T3" style lists, possibly split across repeated flags.
func parseTiers(values []string) ([]m.Tier, error) {
	var tiers []m.Tier

	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}

			t, err := m.ParseTier(part)
			if err != nil {
				return nil, &m.ConfigurationError{Field: quarantineTiersKey, Reason: err.Error()}
			}

			tiers = append(tiers, t)
		}
	}

	return tiers, nil
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
