package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string
	MetricsPort string
	// MetricsAllowedIPs beschränkt /metrics auf diese Adressen; leer = keine Beschränkung.
	MetricsAllowedIPs []string
	// RequestsPerMinute ist das globale Limit pro Client-IP (httprate).
	RequestsPerMinute int

	Environment string

	LogLevel string
	LogFile  string
	// TracingStdout exportiert Spans als JSON nach stderr.
	TracingStdout bool

	JWTAccessTokenTTL time.Duration
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string

	OTPIssuerName     string
	TOTPEnrollSkew    uint
	TOTPChallengeSkew uint

	RecoveryCodeTTL         time.Duration
	RecoveryRequestCooldown time.Duration

	AttemptLimit  int
	AttemptWindow time.Duration

	DatabaseURL string
	RedisAddr   string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// AppRole Credentials
	VaultAddr            string
	VaultAppRoleRoleID   string
	VaultAppRoleSecretID string
	VaultJWTSecretPath   string
	VaultDBCredsPath     string
}

// fileConfig ist das optionale YAML-Overlay (CONFIG_FILE). Secrets gehören nicht hierher.
type fileConfig struct {
	Port              string   `yaml:"port"`
	MetricsPort       string   `yaml:"metrics_port"`
	MetricsAllowedIPs []string `yaml:"metrics_allowed_ips"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`

	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`

	OTP struct {
		IssuerName    string `yaml:"issuer_name"`
		EnrollSkew    *uint  `yaml:"enroll_skew"`
		ChallengeSkew *uint  `yaml:"challenge_skew"`
	} `yaml:"otp"`

	Recovery struct {
		CodeTTL         string `yaml:"code_ttl"`
		RequestCooldown string `yaml:"request_cooldown"`
	} `yaml:"recovery"`

	Attempts struct {
		Limit  int    `yaml:"limit"`
		Window string `yaml:"window"`
	} `yaml:"attempts"`

	RedisAddr string `yaml:"redis_addr"`

	SMTP struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`
		From string `yaml:"from"`
	} `yaml:"smtp"`
}

func LoadConfig() (*Config, error) {
	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("fehler beim Lesen von CONFIG_FILE %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("ungültiges YAML in %s: %w", path, err)
		}
	}

	var cfg Config
	var err error

	cfg.Port = firstNonEmpty(os.Getenv("PORT"), file.Port, "8080")
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("ungültiger PORT: %w", err)
	}
	cfg.MetricsPort = firstNonEmpty(os.Getenv("METRICS_PORT"), file.MetricsPort, "9090")
	if _, err := strconv.Atoi(cfg.MetricsPort); err != nil {
		return nil, fmt.Errorf("ungültiger METRICS_PORT: %w", err)
	}

	cfg.MetricsAllowedIPs = file.MetricsAllowedIPs
	if v := os.Getenv("METRICS_ALLOWED_IPS"); v != "" {
		cfg.MetricsAllowedIPs = splitList(v)
	}

	cfg.RequestsPerMinute = 100
	if file.RequestsPerMinute > 0 {
		cfg.RequestsPerMinute = file.RequestsPerMinute
	}
	if v := os.Getenv("REQUESTS_PER_MINUTE"); v != "" {
		cfg.RequestsPerMinute, err = strconv.Atoi(v)
		if err != nil || cfg.RequestsPerMinute <= 0 {
			return nil, fmt.Errorf("ungültiges REQUESTS_PER_MINUTE: %q", v)
		}
	}

	cfg.Environment = firstNonEmpty(os.Getenv("APP_ENV"), file.Environment, "development")
	cfg.LogLevel = strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), file.LogLevel, "info"))
	cfg.LogFile = firstNonEmpty(os.Getenv("LOG_FILE"), file.LogFile)
	if v := os.Getenv("TRACING_STDOUT"); v != "" {
		cfg.TracingStdout, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("ungültiges TRACING_STDOUT: %w", err)
		}
	}

	cfg.JWTAccessTokenTTL, err = parseDuration("JWT_ACCESS_TOKEN_TTL", os.Getenv("JWT_ACCESS_TOKEN_TTL"), "1h")
	if err != nil {
		return nil, err
	}
	cfg.JWTPrivateKeyPath = os.Getenv("JWT_PRIVATE_KEY_PATH")
	cfg.JWTPublicKeyPath = os.Getenv("JWT_PUBLIC_KEY_PATH")

	cfg.OTPIssuerName = firstNonEmpty(os.Getenv("OTP_ISSUER_NAME"), file.OTP.IssuerName, "Backstage")

	cfg.TOTPEnrollSkew, err = parseSkew("TOTP_ENROLL_SKEW", os.Getenv("TOTP_ENROLL_SKEW"), file.OTP.EnrollSkew, 1)
	if err != nil {
		return nil, err
	}
	// Der Login-Challenge prüft standardmäßig nur das aktuelle Zeitfenster.
	cfg.TOTPChallengeSkew, err = parseSkew("TOTP_CHALLENGE_SKEW", os.Getenv("TOTP_CHALLENGE_SKEW"), file.OTP.ChallengeSkew, 0)
	if err != nil {
		return nil, err
	}

	cfg.RecoveryCodeTTL, err = parseDuration("RECOVERY_CODE_TTL", firstNonEmpty(os.Getenv("RECOVERY_CODE_TTL"), file.Recovery.CodeTTL), "15m")
	if err != nil {
		return nil, err
	}
	cfg.RecoveryRequestCooldown, err = parseDuration("RECOVERY_REQUEST_COOLDOWN", firstNonEmpty(os.Getenv("RECOVERY_REQUEST_COOLDOWN"), file.Recovery.RequestCooldown), "60s")
	if err != nil {
		return nil, err
	}

	cfg.AttemptLimit = 5
	if file.Attempts.Limit > 0 {
		cfg.AttemptLimit = file.Attempts.Limit
	}
	if v := os.Getenv("ATTEMPT_LIMIT"); v != "" {
		cfg.AttemptLimit, err = strconv.Atoi(v)
		if err != nil || cfg.AttemptLimit < 0 {
			return nil, fmt.Errorf("ungültiges ATTEMPT_LIMIT: %q", v)
		}
	}
	cfg.AttemptWindow, err = parseDuration("ATTEMPT_WINDOW", firstNonEmpty(os.Getenv("ATTEMPT_WINDOW"), file.Attempts.Window), "5m")
	if err != nil {
		return nil, err
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), file.RedisAddr, "localhost:6379")

	cfg.SMTPHost = firstNonEmpty(os.Getenv("SMTP_HOST"), file.SMTP.Host)
	cfg.SMTPPort = firstNonEmpty(os.Getenv("SMTP_PORT"), file.SMTP.Port, "465")
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = firstNonEmpty(os.Getenv("SMTP_FROM"), file.SMTP.From, cfg.SMTPUsername)

	// Vault-Variablen laden (optional; ohne VAULT_ADDR kommen Secrets aus Dateien/Env)
	cfg.VaultAddr = os.Getenv("VAULT_ADDR")
	cfg.VaultAppRoleRoleID = os.Getenv("BACKSTAGE_APPROLE_ROLE_ID")
	cfg.VaultAppRoleSecretID = os.Getenv("BACKSTAGE_APPROLE_SECRET_ID")
	cfg.VaultJWTSecretPath = os.Getenv("VAULT_JWT_SECRET_PATH")
	cfg.VaultDBCredsPath = os.Getenv("VAULT_DB_CREDS_PATH")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UseVault meldet, ob Secrets aus Vault geladen werden.
func (c *Config) UseVault() bool {
	return c.VaultAddr != ""
}

func (c *Config) validate() error {
	if c.UseVault() {
		if c.VaultAppRoleRoleID == "" {
			return fmt.Errorf("konfiguration fehlt: BACKSTAGE_APPROLE_ROLE_ID muss gesetzt sein")
		}
		if c.VaultAppRoleSecretID == "" {
			return fmt.Errorf("konfiguration fehlt: BACKSTAGE_APPROLE_SECRET_ID muss gesetzt sein")
		}
		if c.VaultJWTSecretPath == "" {
			return fmt.Errorf("konfiguration fehlt: VAULT_JWT_SECRET_PATH muss gesetzt sein")
		}
		if c.VaultDBCredsPath == "" {
			return fmt.Errorf("konfiguration fehlt: VAULT_DB_CREDS_PATH muss gesetzt sein")
		}
		return nil
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("konfiguration fehlt: DATABASE_URL oder VAULT_ADDR muss gesetzt sein")
	}
	if c.JWTPrivateKeyPath == "" || c.JWTPublicKeyPath == "" {
		return fmt.Errorf("konfiguration fehlt: JWT_PRIVATE_KEY_PATH und JWT_PUBLIC_KEY_PATH müssen gesetzt sein")
	}
	return nil
}

func parseDuration(name, value, fallback string) (time.Duration, error) {
	if value == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("ungültige %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("ungültige %s: muss positiv sein", name)
	}
	return d, nil
}

func parseSkew(name, value string, fromFile *uint, fallback uint) (uint, error) {
	if value == "" {
		if fromFile != nil {
			return *fromFile, nil
		}
		return fallback, nil
	}
	n, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("ungültiger %s: %w", name, err)
	}
	return uint(n), nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
