package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default), TEST, QA, PROD
		Build    string

		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromName  string
		DefaultFromAddr  string
		SendgridAPIKey   string
		SMSGatewayURL    string
		SMSGatewayToken  string
		RollbarToken     string
		WorkDir          string
		DefaultLocale    string
		SupportedLocales []string

		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		OTP      OTPConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      int
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		LoginRateLimitPerMin      int
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          int
		DisableTLS    bool
	}

	RedisConfig struct {
		URL string
	}

	OTPConfig struct {
		Length      int
		TTL         time.Duration
		MaxAttempts int
	}
)

func (c *Config) Address() string          { return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port) }
func (dc *DatabaseConfig) Address() string { return fmt.Sprintf("%s:%d", dc.Host, dc.Port) }

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.DefaultFromName, Address: c.DefaultFromAddr}
}

// Validate checks that required settings are provided. Called once at startup;
// a failure here is fatal.
func (c *Config) Validate() error {
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.SecretKey, "secretKey"),
		vala.StringNotEmpty(c.Database.Engine, "database.engine"),
		vala.StringNotEmpty(c.Database.Name, "database.name"),
		vala.GreaterThan(c.Server.Port, 0, "server.port"),
		vala.GreaterThan(c.OTP.Length, 0, "otp.length"),
		vala.GreaterThan(int(c.OTP.TTL), 0, "otp.ttl"),
	).Check()
}

// NewConfig loads the app configuration: code defaults first, then an optional
// config/.env.<env> file, then environment variables prefixed with <ENV>_.
func NewConfig(workDir string) *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Akademy")
	v.SetDefault("secretKey", "zxc(r8ho&-$=yn0a#yf3v@8^p+5k2b!dq7_ejm14wgu6s9%tl5")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromName", "Akademy")
	v.SetDefault("defaultFromAddr", "noreply@localhost")
	v.SetDefault("defaultLocale", "pl")
	v.SetDefault("supportedLocales", []string{"pl", "en", "uk"})
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.loginRateLimitPerMin", 5)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "akademy")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("otp.length", 4)
	v.SetDefault("otp.ttl", 5*time.Minute)
	v.SetDefault("otp.maxAttempts", 5)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetDefault("env", env)
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              v.GetString("env"),
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromName:  v.GetString("defaultFromName"),
		DefaultFromAddr:  v.GetString("defaultFromAddr"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		SMSGatewayURL:    v.GetString("smsGatewayURL"),
		SMSGatewayToken:  v.GetString("smsGatewayToken"),
		RollbarToken:     v.GetString("rollbarToken"),
		WorkDir:          workDir,
		DefaultLocale:    v.GetString("defaultLocale"),
		SupportedLocales: v.GetStringSlice("supportedLocales"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetInt("server.port"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			LoginRateLimitPerMin:      v.GetInt("server.loginRateLimitPerMin"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		OTP: OTPConfig{
			Length:      v.GetInt("otp.length"),
			TTL:         v.GetDuration("otp.ttl"),
			MaxAttempts: v.GetInt("otp.maxAttempts"),
		},
	}
}
