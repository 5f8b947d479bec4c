package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env (optionally seeded from a .env file by main).
// Handlers never read raw environment variables; they receive handles built from this value.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Twilio   TwilioConfig
	Agent    AgentConfig
	Workflow WorkflowConfig
	Limits   LimitsConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin of this service.
	// The agent completion callback address is derived from it.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

type TwilioConfig struct {
	AuthToken         string
	ValidateSignature bool
}

// AgentConfig describes the remote conversational agent the call is handed off to.
type AgentConfig struct {
	StreamURL string
	AgentID   string
	APIKey    string
}

const (
	WorkflowTransportHTTP = "http"
	WorkflowTransportAMQP = "amqp"
)

// WorkflowConfig describes where finished transcripts are forwarded.
type WorkflowConfig struct {
	Transport  string
	WebhookURL string
	Timeout    time.Duration

	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
}

type LimitsConfig struct {
	PINAttemptsPerMinute int
	WebhookRPS           float64
	WebhookBurst         int
}

const defaultAgentStreamURL = "wss://api.elevenlabs.io/v1/convai/conversation"

func Load() (Config, error) {
	c := Config{}
	var env envReader

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = env.requiredInt("APP_PORT")
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = env.requiredInt("DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = env.requiredInt("REDIS_PORT")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = optionalDuration("JWT_ACCESS_TTL")

	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.ValidateSignature = env.optBool("TWILIO_VALIDATE_SIGNATURE")

	c.Agent.StreamURL = strings.TrimSpace(os.Getenv("AGENT_STREAM_URL"))
	c.Agent.AgentID = strings.TrimSpace(os.Getenv("AGENT_ID"))
	c.Agent.APIKey = os.Getenv("AGENT_API_KEY")

	c.Workflow.Transport = strings.ToLower(strings.TrimSpace(os.Getenv("WORKFLOW_TRANSPORT")))
	c.Workflow.WebhookURL = strings.TrimSpace(os.Getenv("WORKFLOW_WEBHOOK_URL"))
	c.Workflow.Timeout = optionalDuration("WORKFLOW_TIMEOUT")
	c.Workflow.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	c.Workflow.AMQPExchange = strings.TrimSpace(os.Getenv("AMQP_EXCHANGE"))
	c.Workflow.AMQPRoutingKey = strings.TrimSpace(os.Getenv("AMQP_ROUTING_KEY"))

	c.Limits.PINAttemptsPerMinute = env.optInt("PIN_ATTEMPTS_PER_MINUTE")
	c.Limits.WebhookRPS = env.optFloat("WEBHOOK_RPS")
	c.Limits.WebhookBurst = env.optInt("WEBHOOK_BURST")

	if err := joinErrors(env.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if !isAbsoluteURL(c.App.PublicBaseURL, "http", "https") {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute http(s) URL, got %q", c.App.PublicBaseURL))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Twilio.ValidateSignature && c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required when TWILIO_VALIDATE_SIGNATURE is set"))
	}
	if c.IsProduction() && !c.Twilio.ValidateSignature {
		errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURE must be enabled in production"))
	}

	if c.Agent.StreamURL == "" {
		c.Agent.StreamURL = defaultAgentStreamURL
	}
	if !isAbsoluteURL(c.Agent.StreamURL, "wss") {
		errs = append(errs, fmt.Errorf("AGENT_STREAM_URL must be a wss URL, got %q", c.Agent.StreamURL))
	}
	if c.Agent.AgentID == "" {
		errs = append(errs, errors.New("AGENT_ID is required"))
	}
	if c.Agent.APIKey == "" {
		errs = append(errs, errors.New("AGENT_API_KEY is required"))
	}

	if c.Workflow.Transport == "" {
		c.Workflow.Transport = WorkflowTransportHTTP
	}
	if c.Workflow.Timeout <= 0 {
		c.Workflow.Timeout = 5 * time.Second
	}
	switch c.Workflow.Transport {
	case WorkflowTransportHTTP:
		if c.Workflow.WebhookURL == "" {
			errs = append(errs, errors.New("WORKFLOW_WEBHOOK_URL is required for the http transport"))
		} else if !isAbsoluteURL(c.Workflow.WebhookURL, "http", "https") {
			errs = append(errs, fmt.Errorf("WORKFLOW_WEBHOOK_URL must be an absolute http(s) URL, got %q", c.Workflow.WebhookURL))
		}
	case WorkflowTransportAMQP:
		if c.Workflow.AMQPURL == "" {
			errs = append(errs, errors.New("AMQP_URL is required for the amqp transport"))
		}
		if c.Workflow.AMQPExchange == "" {
			c.Workflow.AMQPExchange = "ex.transcripts"
		}
		if c.Workflow.AMQPRoutingKey == "" {
			c.Workflow.AMQPRoutingKey = "k.process-transcript"
		}
	default:
		errs = append(errs, fmt.Errorf("WORKFLOW_TRANSPORT must be one of http, amqp, got %q", c.Workflow.Transport))
	}

	if c.Limits.PINAttemptsPerMinute <= 0 {
		c.Limits.PINAttemptsPerMinute = 3
	}
	if c.Limits.WebhookRPS <= 0 {
		c.Limits.WebhookRPS = 20
	}
	if c.Limits.WebhookBurst <= 0 {
		c.Limits.WebhookBurst = 40
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// AgentWebhookURL is the address the conversational agent posts its completion event to.
func (c Config) AgentWebhookURL() string {
	return c.App.PublicBaseURL + "/webhooks/agent/completion"
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// envReader parses typed env values and keeps every parse error so Load can
// report them together.
type envReader struct {
	errs []error
}

func (r *envReader) keep(err error) {
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

func (r *envReader) requiredInt(key string) int {
	n, err := mustInt(key)
	r.keep(err)
	return n
}

func (r *envReader) optInt(key string) int {
	n, err := optionalInt(key)
	r.keep(err)
	return n
}

func (r *envReader) optFloat(key string) float64 {
	f, err := optionalFloat(key)
	r.keep(err)
	return f
}

func (r *envReader) optBool(key string) bool {
	b, err := optionalBool(key)
	r.keep(err)
	return b
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalFloat(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func optionalBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// optionalDuration returns 0 for unset or unparsable values; Validate applies defaults.
func optionalDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func isAbsoluteURL(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
