package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ggonzalez94/questd/internal/wallet"
	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath   string
	JSON         bool
	Plain        bool
	AccountsPath string
	StorePath    string
	StoreDriver  string
	Timeout      string
	Retries      int
	LogLevel     string
	LogFormat    string
	LogFile      string
	NoDailyClaim bool
}

type Settings struct {
	OutputMode string

	BaseURL   string
	WalletURL string
	Timeout   time.Duration

	RPCURL          string
	MinBalance      string
	TransferTargets []string
	Amounts         map[string]wallet.Range

	StoreDriver   string
	StorePath     string
	StoreLockPath string
	AccountsPath  string

	Retries        int
	RetryBaseDelay time.Duration
	RetryJitter    time.Duration

	AccountDelay  time.Duration
	RoutineDelay  time.Duration
	RoutineJitter time.Duration
	MarkDelay     time.Duration
	CycleBuffer   time.Duration
	IdleInterval  time.Duration

	SocialCooldown     time.Duration
	OnChainCooldown    time.Duration
	DailyClaimCooldown time.Duration
	OnChainSpacing     time.Duration

	OnChainCategories []string
	DailyTargets      map[string]int
	NoCooldown        []string
	Routine           []string
	DailyClaim        bool

	AlreadyWords    []string
	CooldownWords   []string
	AlreadyStatuses []int

	TwitterUsername string
	TweetURL        string

	LogLevel  string
	LogFormat string
	LogFile   string
}

type fileConfig struct {
	Output string `yaml:"output"`
	API    struct {
		BaseURL   string `yaml:"base_url"`
		WalletURL string `yaml:"wallet_url"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"api"`
	Chain struct {
		RPCURL          string                  `yaml:"rpc_url"`
		MinBalance      string                  `yaml:"min_balance"`
		TransferTargets []string                `yaml:"transfer_targets"`
		Amounts         map[string]wallet.Range `yaml:"amounts"`
	} `yaml:"chain"`
	Store struct {
		Driver   string `yaml:"driver"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"store"`
	Accounts struct {
		Path string `yaml:"path"`
	} `yaml:"accounts"`
	Retry struct {
		Attempts  *int   `yaml:"attempts"`
		BaseDelay string `yaml:"base_delay"`
		Jitter    string `yaml:"jitter"`
	} `yaml:"retry"`
	Pacing struct {
		AccountDelay  string `yaml:"account_delay"`
		RoutineDelay  string `yaml:"routine_delay"`
		RoutineJitter string `yaml:"routine_jitter"`
		MarkDelay     string `yaml:"mark_delay"`
		CycleBuffer   string `yaml:"cycle_buffer"`
		IdleInterval  string `yaml:"idle_interval"`
	} `yaml:"pacing"`
	Cooldowns struct {
		Social         string `yaml:"social"`
		OnChain        string `yaml:"onchain"`
		DailyClaim     string `yaml:"daily_claim"`
		OnChainSpacing string `yaml:"onchain_spacing"`
	} `yaml:"cooldowns"`
	Quests struct {
		OnChainCategories []string       `yaml:"onchain_categories"`
		DailyTargets      map[string]int `yaml:"daily_targets"`
		NoCooldown        []string       `yaml:"no_cooldown"`
		Routine           []string       `yaml:"routine"`
		DailyClaim        *bool          `yaml:"daily_claim"`
	} `yaml:"quests"`
	Classify struct {
		Already         []string `yaml:"already"`
		Cooldown        []string `yaml:"cooldown"`
		AlreadyStatuses []int    `yaml:"already_statuses"`
	} `yaml:"classify"`
	Social struct {
		TwitterUsername string `yaml:"twitter_username"`
		TweetURL        string `yaml:"tweet_url"`
	} `yaml:"social"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings := defaultSettings()

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries <= 0 {
		settings.Retries = 3
	}
	if settings.StoreLockPath == "" {
		settings.StoreLockPath = settings.StorePath + ".lock"
	}

	return settings, nil
}

func defaultSettings() Settings {
	return Settings{
		OutputMode: "plain",
		BaseURL:    "https://v1.shadenetwork.io",
		WalletURL:  "https://wallet.shadenetwork.io",
		Timeout:    10 * time.Second,
		RPCURL:     "https://rpc.shadenetwork.io",
		MinBalance: "0.0001",
		TransferTargets: []string{
			"0x9433e83af032235b5eb9a8476f4d39a920475bb9",
			"0x065f36D28d1a14b87809431d45726FEB18458c4a",
			"0xeA27dC38Bfd94f9C7349914aA1AF7A24B8d32cF3",
		},
		Amounts: map[string]wallet.Range{
			"shield":       wallet.DefaultRange,
			"unshield":     wallet.DefaultRange,
			"private_send": wallet.DefaultRange,
		},
		StoreDriver:        "json",
		StorePath:          "database.json",
		AccountsPath:       "accounts.json",
		Retries:            3,
		RetryBaseDelay:     2 * time.Second,
		RetryJitter:        time.Second,
		AccountDelay:       5 * time.Second,
		RoutineDelay:       2 * time.Second,
		RoutineJitter:      1500 * time.Millisecond,
		MarkDelay:          500 * time.Millisecond,
		CycleBuffer:        30 * time.Second,
		IdleInterval:       60 * time.Second,
		SocialCooldown:     17 * time.Hour,
		OnChainCooldown:    4 * time.Hour,
		DailyClaimCooldown: 24 * time.Hour,
		OnChainSpacing:     30 * time.Second,
		OnChainCategories:  []string{"shield", "unshield", "private_send", "faucet"},
		DailyTargets:       map[string]int{"shield": 1, "private_send": 1, "unshield": 1},
		NoCooldown:         []string{"shield", "unshield", "invite"},
		Routine:            []string{"shield", "private_send", "unshield"},
		DailyClaim:         true,
		AlreadyWords:       []string{"already", "completed"},
		CooldownWords:      []string{"limit", "tomorrow", "cooldown"},
		AlreadyStatuses:    []int{400},
		TwitterUsername:    "pubgsec1",
		TweetURL:           "https://x.com/Shade_L2/status/1880000000000000000",
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "questd", "config.yaml"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	setString(&settings.BaseURL, cfg.API.BaseURL)
	setString(&settings.WalletURL, cfg.API.WalletURL)
	setString(&settings.RPCURL, cfg.Chain.RPCURL)
	setString(&settings.MinBalance, cfg.Chain.MinBalance)
	if len(cfg.Chain.TransferTargets) > 0 {
		settings.TransferTargets = cfg.Chain.TransferTargets
	}
	for k, v := range cfg.Chain.Amounts {
		settings.Amounts[strings.ToLower(k)] = v
	}
	setString(&settings.StoreDriver, strings.ToLower(cfg.Store.Driver))
	setString(&settings.StorePath, cfg.Store.Path)
	setString(&settings.StoreLockPath, cfg.Store.LockPath)
	setString(&settings.AccountsPath, cfg.Accounts.Path)
	if cfg.Retry.Attempts != nil {
		settings.Retries = *cfg.Retry.Attempts
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"api.timeout", cfg.API.Timeout, &settings.Timeout},
		{"retry.base_delay", cfg.Retry.BaseDelay, &settings.RetryBaseDelay},
		{"retry.jitter", cfg.Retry.Jitter, &settings.RetryJitter},
		{"pacing.account_delay", cfg.Pacing.AccountDelay, &settings.AccountDelay},
		{"pacing.routine_delay", cfg.Pacing.RoutineDelay, &settings.RoutineDelay},
		{"pacing.routine_jitter", cfg.Pacing.RoutineJitter, &settings.RoutineJitter},
		{"pacing.mark_delay", cfg.Pacing.MarkDelay, &settings.MarkDelay},
		{"pacing.cycle_buffer", cfg.Pacing.CycleBuffer, &settings.CycleBuffer},
		{"pacing.idle_interval", cfg.Pacing.IdleInterval, &settings.IdleInterval},
		{"cooldowns.social", cfg.Cooldowns.Social, &settings.SocialCooldown},
		{"cooldowns.onchain", cfg.Cooldowns.OnChain, &settings.OnChainCooldown},
		{"cooldowns.daily_claim", cfg.Cooldowns.DailyClaim, &settings.DailyClaimCooldown},
		{"cooldowns.onchain_spacing", cfg.Cooldowns.OnChainSpacing, &settings.OnChainSpacing},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if len(cfg.Quests.OnChainCategories) > 0 {
		settings.OnChainCategories = cfg.Quests.OnChainCategories
	}
	if cfg.Quests.DailyTargets != nil {
		settings.DailyTargets = cfg.Quests.DailyTargets
	}
	if cfg.Quests.NoCooldown != nil {
		settings.NoCooldown = cfg.Quests.NoCooldown
	}
	if len(cfg.Quests.Routine) > 0 {
		settings.Routine = cfg.Quests.Routine
	}
	if cfg.Quests.DailyClaim != nil {
		settings.DailyClaim = *cfg.Quests.DailyClaim
	}
	if len(cfg.Classify.Already) > 0 {
		settings.AlreadyWords = cfg.Classify.Already
	}
	if len(cfg.Classify.Cooldown) > 0 {
		settings.CooldownWords = cfg.Classify.Cooldown
	}
	if cfg.Classify.AlreadyStatuses != nil {
		settings.AlreadyStatuses = cfg.Classify.AlreadyStatuses
	}
	setString(&settings.TwitterUsername, cfg.Social.TwitterUsername)
	setString(&settings.TweetURL, cfg.Social.TweetURL)
	setString(&settings.LogLevel, cfg.Log.Level)
	setString(&settings.LogFormat, cfg.Log.Format)
	setString(&settings.LogFile, cfg.Log.File)

	return nil
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("QUESTD_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("QUESTD_BASE_URL"); v != "" {
		settings.BaseURL = v
	}
	if v := os.Getenv("QUESTD_WALLET_URL"); v != "" {
		settings.WalletURL = v
	}
	if v := os.Getenv("QUESTD_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("QUESTD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("QUESTD_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("QUESTD_STORE_DRIVER"); v != "" {
		settings.StoreDriver = strings.ToLower(v)
	}
	if v := os.Getenv("QUESTD_STORE_PATH"); v != "" {
		settings.StorePath = v
	}
	if v := os.Getenv("QUESTD_STORE_LOCK_PATH"); v != "" {
		settings.StoreLockPath = v
	}
	if v := os.Getenv("QUESTD_ACCOUNTS_PATH"); v != "" {
		settings.AccountsPath = v
	}
	if v := os.Getenv("QUESTD_DAILY_CLAIM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.DailyClaim = b
		}
	}
	if v := os.Getenv("QUESTD_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("QUESTD_LOG_FORMAT"); v != "" {
		settings.LogFormat = v
	}
	if v := os.Getenv("QUESTD_LOG_FILE"); v != "" {
		settings.LogFile = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	setString(&settings.AccountsPath, flags.AccountsPath)
	setString(&settings.StorePath, flags.StorePath)
	setString(&settings.StoreDriver, strings.ToLower(flags.StoreDriver))
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries > 0 {
		settings.Retries = flags.Retries
	}
	setString(&settings.LogLevel, flags.LogLevel)
	setString(&settings.LogFormat, flags.LogFormat)
	setString(&settings.LogFile, flags.LogFile)
	if flags.NoDailyClaim {
		settings.DailyClaim = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	if settings.StoreDriver != "json" && settings.StoreDriver != "sqlite" {
		return fmt.Errorf("store driver must be json or sqlite")
	}
	if settings.LogFormat != "console" && settings.LogFormat != "json" {
		return fmt.Errorf("log format must be console or json")
	}

	return nil
}
