package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DatabaseSchemePostgres is the postgres database scheme identifier
	DatabaseSchemePostgres = "postgres"

	// GovernorBravo and UNI on Ethereum mainnet.
	defaultGovernorAddress = "0x408ED6354d4973f66138C91495F2f2FCbd8724C0"
	defaultTokenAddress    = "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"
)

var hexAddress = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type Config struct {
	EthRPCURL   string // JSON-RPC endpoint used for eth_getLogs and eth_call
	CometRPCURL string // optional: CometBFT RPC of an EVM chain, used as head source
	WSPath      string
	DBDialect   string // postgres only
	DBDsn       string // DSN string passed to GORM driver
	LevelDBPath string // embedded store used when DATABASE_URL is not set

	GovernorAddress string
	TokenAddress    string
	StartBlock      uint64 // 0 means start at the current head
	Confirmations   uint64
	BatchBlocks     uint64
	PollInterval    time.Duration

	KafkaBrokers string // optional: comma separated
	KafkaTopic   string
	APIListen    string // optional: host:port of the status API
	LabelsURL    string // optional: JSON address -> label map
	AlertPrefix  string

	Engine Engine

	Debug bool // if true: show logs, no TUI; if false: logs to file only, show TUI
	NoTUI bool
}

// Engine holds the detection windows and thresholds.
type Engine struct {
	LeadWindowSize       uint64   // LEAD_WINDOW_SIZE
	AfterVoteWindow      uint64   // AFTER_VOTE_WINDOW
	VotingPowerThreshold *big.Int // VOTING_POWER_THRESHOLD
	MediumThreshold      *big.Int // MEDIUM_TH
	HighThreshold        *big.Int // HIGH_TH
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func getenvUint(key string, def uint64) (uint64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvBig(key string, def int64) (*big.Int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return big.NewInt(def), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid non-negative integer %q", key, v)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// parseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql.
func parseDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case DatabaseSchemePostgres, "postgresql":
		// GORM postgres driver accepts URL DSN as-is
		return DatabaseSchemePostgres, databaseURL, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

// DefaultEngine returns the detection settings used when no override is set.
func DefaultEngine() Engine {
	return Engine{
		LeadWindowSize:       50,
		AfterVoteWindow:      100,
		VotingPowerThreshold: big.NewInt(1000),
		MediumThreshold:      big.NewInt(5000),
		HighThreshold:        big.NewInt(10000),
	}
}

func loadEngine() (Engine, error) {
	def := DefaultEngine()
	var (
		e   Engine
		err error
	)
	if e.LeadWindowSize, err = getenvUint("LEAD_WINDOW_SIZE", def.LeadWindowSize); err != nil {
		return e, err
	}
	if e.AfterVoteWindow, err = getenvUint("AFTER_VOTE_WINDOW", def.AfterVoteWindow); err != nil {
		return e, err
	}
	if e.VotingPowerThreshold, err = getenvBig("VOTING_POWER_THRESHOLD", def.VotingPowerThreshold.Int64()); err != nil {
		return e, err
	}
	if e.MediumThreshold, err = getenvBig("MEDIUM_TH", def.MediumThreshold.Int64()); err != nil {
		return e, err
	}
	if e.HighThreshold, err = getenvBig("HIGH_TH", def.HighThreshold.Int64()); err != nil {
		return e, err
	}
	return e, nil
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		EthRPCURL:       getenv("ETH_RPC_URL", "http://localhost:8545"),
		CometRPCURL:     os.Getenv("COMET_RPC_URL"),
		WSPath:          getenv("WS_PATH", "/websocket"),
		LevelDBPath:     getenv("LEVELDB_PATH", "./data/store"),
		GovernorAddress: getenv("GOVERNOR_ADDRESS", defaultGovernorAddress),
		TokenAddress:    getenv("TOKEN_ADDRESS", defaultTokenAddress),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:      getenv("KAFKA_TOPIC", "governance.findings"),
		APIListen:       os.Getenv("API_LISTEN"),
		LabelsURL:       os.Getenv("LABELS_URL"),
		AlertPrefix:     getenv("ALERT_PREFIX", "UNI-GOV"),
		Debug:           getenvBool("DEBUG", false),
		NoTUI:           getenvBool("NO_TUI", false),
	}

	var err error
	if cfg.StartBlock, err = getenvUint("START_BLOCK", 0); err != nil {
		return cfg, err
	}
	if cfg.Confirmations, err = getenvUint("CONFIRMATIONS", 2); err != nil {
		return cfg, err
	}
	if cfg.BatchBlocks, err = getenvUint("BATCH_BLOCKS", 500); err != nil {
		return cfg, err
	}
	if cfg.PollInterval, err = getenvDuration("POLL_INTERVAL", 12*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Engine, err = loadEngine(); err != nil {
		return cfg, err
	}

	if dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL")); dbURL != "" {
		if dialect, dsn, err := parseDatabaseURL(dbURL); err == nil {
			cfg.DBDialect = dialect
			cfg.DBDsn = dsn
		} else {
			fmt.Fprintf(os.Stderr, "warning: invalid DATABASE_URL, falling back to leveldb: %v\n", err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks option consistency.
func (c Config) Validate() error {
	if !hexAddress.MatchString(c.GovernorAddress) {
		return fmt.Errorf("GOVERNOR_ADDRESS: invalid address %q", c.GovernorAddress)
	}
	if !hexAddress.MatchString(c.TokenAddress) {
		return fmt.Errorf("TOKEN_ADDRESS: invalid address %q", c.TokenAddress)
	}
	if c.BatchBlocks == 0 {
		return fmt.Errorf("BATCH_BLOCKS must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	e := c.Engine
	if e.VotingPowerThreshold == nil || e.MediumThreshold == nil || e.HighThreshold == nil {
		return fmt.Errorf("engine thresholds must be set")
	}
	if e.MediumThreshold.Cmp(e.HighThreshold) > 0 {
		return fmt.Errorf("MEDIUM_TH (%s) must not exceed HIGH_TH (%s)", e.MediumThreshold, e.HighThreshold)
	}
	return nil
}

// KafkaBrokerList splits KAFKA_BROKERS.
func (c Config) KafkaBrokerList() []string {
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}

func (c Config) WSURL() string {
	// cometbft http client expects a separate ws endpoint path
	return c.WSPath
}

func (c Config) String() string {
	return fmt.Sprintf("rpc=%s comet=%s db=%s", c.EthRPCURL, c.CometRPCURL, c.DBDialect)
}

// DebugString returns a human-friendly configuration string with masked secrets.
func (c Config) DebugString() string {
	return fmt.Sprintf(
		"rpc=%s comet=%s ws_path=%s db=%s dsn=%s leveldb=%s governor=%s token=%s kafka=%s lead=%d after=%d th=%s medium=%s high=%s",
		maskURL(c.EthRPCURL),
		c.CometRPCURL,
		c.WSPath,
		c.DBDialect,
		maskDSN(c.DBDialect, c.DBDsn),
		c.LevelDBPath,
		c.GovernorAddress,
		c.TokenAddress,
		c.KafkaBrokers,
		c.Engine.LeadWindowSize,
		c.Engine.AfterVoteWindow,
		c.Engine.VotingPowerThreshold,
		c.Engine.MediumThreshold,
		c.Engine.HighThreshold,
	)
}

// maskURL drops credentials and API keys carried in the path of hosted RPC URLs.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.User = nil
	if len(u.Path) > 1 {
		u.Path = "/***"
	}
	u.RawQuery = ""
	return u.String()
}

func maskDSN(dialect, dsn string) string {
	switch strings.ToLower(dialect) {
	case DatabaseSchemePostgres:
		if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
			if u.User != nil {
				username := u.User.Username()
				u.User = url.User(username)
			}
			return u.String()
		}
		// Fallback for DSN as key-value list
		parts := strings.Fields(dsn)
		for i, p := range parts {
			lower := strings.ToLower(p)
			if strings.HasPrefix(lower, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	default:
		return dsn
	}
}
