package main

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/krypto"
)

// config is the configuration for the server command, sourced from the
// environment with defaults suitable for local development. The secret
// defaults MUST be overridden in any real deployment.
type config struct {
	HTTPAddr            string        `env:"HTTP_ADDR" envDefault:":8888"`
	HTTPReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	HTTPWriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	HTTPIdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"2m"`
	HTTPShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// BaseURL is the external URL of the app, used to build the links in
	// outgoing emails.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8888"`

	DBFile string `env:"DB_FILE" envDefault:"enroll.db"`

	// SecretKey signs the auth tokens and is the root for the derived
	// session, CSRF and email token keys.
	SecretKey    krypto.Secret `env:"SECRET_KEY" envDefault:"my_precious"`
	PasswordSalt krypto.Secret `env:"SECURITY_PASSWORD_SALT" envDefault:"my_precious_two"`

	AuthTokenTTL       time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"600s"`
	ConfirmTokenMaxAge time.Duration `env:"CONFIRM_TOKEN_MAX_AGE" envDefault:"3600s"`

	SecureCookie bool `env:"SECURE_COOKIE" envDefault:"false"`

	// MailDriver selects the sender implementation, "smtp" or "log".
	MailDriver   string        `env:"MAIL_DRIVER" envDefault:"log"`
	MailServer   string        `env:"APP_MAIL_SERVER" envDefault:"smtp.googlemail.com"`
	MailPort     int           `env:"APP_MAIL_PORT" envDefault:"465"`
	MailUseTLS   bool          `env:"APP_MAIL_USE_TLS" envDefault:"false"`
	MailUseSSL   bool          `env:"APP_MAIL_USE_SSL" envDefault:"true"`
	MailUsername string        `env:"APP_MAIL_USERNAME"`
	MailPassword krypto.Secret `env:"APP_MAIL_PASSWORD"`
	MailSender   email.Address `env:"MAIL_DEFAULT_SENDER" envDefault:"from@example.com"`
}

// configFromEnv parses the configuration from the environment.
func configFromEnv() (config, error) {
	return env.ParseAs[config]()
}
