package config

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "LEAD_WINDOW_SIZE", "AFTER_VOTE_WINDOW",
		"VOTING_POWER_THRESHOLD", "MEDIUM_TH", "HIGH_TH", "START_BLOCK", "POLL_INTERVAL",
		"GOVERNOR_ADDRESS", "TOKEN_ADDRESS", "BATCH_BLOCKS"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBDialect != "" {
		t.Errorf("unexpected dialect %q", cfg.DBDialect)
	}
	if diff := cmp.Diff(uint64(50), cfg.Engine.LeadWindowSize); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff(uint64(100), cfg.Engine.AfterVoteWindow); diff != "" {
		t.Error(diff)
	}
	if cfg.Engine.HighThreshold.Cmp(big.NewInt(10000)) != 0 {
		t.Errorf("got high threshold %v", cfg.Engine.HighThreshold)
	}
	if diff := cmp.Diff(12*time.Second, cfg.PollInterval); diff != "" {
		t.Error(diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgresql://mon:secret@db:5432/gov?sslmode=disable")
	t.Setenv("LEAD_WINDOW_SIZE", "6500")
	t.Setenv("VOTING_POWER_THRESHOLD", "1000000000000000000000")
	t.Setenv("MEDIUM_TH", "5000000000000000000000")
	t.Setenv("HIGH_TH", "10000000000000000000000")
	t.Setenv("START_BLOCK", "17000000")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(DatabaseSchemePostgres, cfg.DBDialect); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff(uint64(6500), cfg.Engine.LeadWindowSize); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff("1000000000000000000000", cfg.Engine.VotingPowerThreshold.String()); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff(uint64(17000000), cfg.StartBlock); diff != "" {
		t.Error(diff)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"negative threshold", "VOTING_POWER_THRESHOLD", "-1"},
		{"non numeric window", "LEAD_WINDOW_SIZE", "fifty"},
		{"bad governor", "GOVERNOR_ADDRESS", "0x1234"},
		{"medium above high", "MEDIUM_TH", "20000"},
		{"bad interval", "POLL_INTERVAL", "soon"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://mon:secret@db:5432/gov", "postgres://mon@db:5432/gov"},
		{"host=db user=mon password=secret dbname=gov", "host=db user=mon password=*** dbname=gov"},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, maskDSN(DatabaseSchemePostgres, tc.dsn)); diff != "" {
			t.Error(diff)
		}
	}
}

func TestKafkaBrokerList(t *testing.T) {
	c := Config{KafkaBrokers: " a:9092, ,b:9092 "}
	if diff := cmp.Diff([]string{"a:9092", "b:9092"}, c.KafkaBrokerList()); diff != "" {
		t.Error(diff)
	}
}
