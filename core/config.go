package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		ContactEmail     mail.Address
		RollbarToken     string
		SendgridApiKey   string

		Server   ServerConfig
		Database DatabaseConfig
		Media    MediaConfig
		Quiz     QuizConfig
		Convert  ConvertConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool

		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
	}

	MediaConfig struct {
		Backend        string // local | oss
		Root           string
		BaseURL        string
		MaxUploadSize  int64
		ImageMaxWidth  int
		ImageMaxHeight int

		OSSEndpoint        string
		OSSAccessKeyID     string
		OSSAccessKeySecret string
		OSSBucket          string
	}

	QuizConfig struct {
		SelectionTTL time.Duration
	}

	ConvertConfig struct {
		Enabled bool
		Binary  string
		Timeout time.Duration
	}
)

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig loads the app configuration from the environment (and `config/.env.<env>` if it exists).
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("appName", "Darslik")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "n1k(6w%q^0v+eq$3q_)7rx!d2=jz4k8@c5b&a#y0g^t1xq2m")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "Darslik <noreply@localhost>")
	v.SetDefault("contactEmail", "Darslik <contact@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("serverHost", "")
	v.SetDefault("serverPort", 8000)
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverReadTimeout", 5*time.Second)
	v.SetDefault("serverWriteTimeout", 30*time.Second)
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", 5432)
	v.SetDefault("dbName", "darslik")
	v.SetDefault("dbUser", "darslik")
	v.SetDefault("dbPassword", "darslik")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("dbMaxOpenConns", 20)
	v.SetDefault("dbMaxIdleConns", 5)
	v.SetDefault("dbConnMaxLifetime", "30m")

	v.SetDefault("mediaBackend", "local")
	v.SetDefault("mediaRoot", "media")
	v.SetDefault("mediaBaseURL", "/media/")
	v.SetDefault("mediaMaxUploadSize", int64(20<<20))
	v.SetDefault("mediaImageMaxWidth", 1600)
	v.SetDefault("mediaImageMaxHeight", 1600)
	v.SetDefault("ossEndpoint", "")
	v.SetDefault("ossAccessKeyID", "")
	v.SetDefault("ossAccessKeySecret", "")
	v.SetDefault("ossBucket", "")

	v.SetDefault("quizSelectionTTL", 12*time.Hour)

	v.SetDefault("convertEnabled", false)
	v.SetDefault("convertBinary", "soffice")
	v.SetDefault("convertTimeout", 60*time.Second)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          wd,
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: parseAddress(v.GetString("defaultFromEmail")),
		ContactEmail:     parseAddress(v.GetString("contactEmail")),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Port:                      v.GetInt("serverPort"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ReadTimeout:               v.GetDuration("serverReadTimeout"),
			WriteTimeout:              v.GetDuration("serverWriteTimeout"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetInt("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),

			MaxOpenConns:    v.GetInt("dbMaxOpenConns"),
			MaxIdleConns:    v.GetInt("dbMaxIdleConns"),
			ConnMaxLifetime: v.GetDuration("dbConnMaxLifetime"),
		},
		Media: MediaConfig{
			Backend:            v.GetString("mediaBackend"),
			Root:               v.GetString("mediaRoot"),
			BaseURL:            v.GetString("mediaBaseURL"),
			MaxUploadSize:      v.GetInt64("mediaMaxUploadSize"),
			ImageMaxWidth:      v.GetInt("mediaImageMaxWidth"),
			ImageMaxHeight:     v.GetInt("mediaImageMaxHeight"),
			OSSEndpoint:        v.GetString("ossEndpoint"),
			OSSAccessKeyID:     v.GetString("ossAccessKeyID"),
			OSSAccessKeySecret: v.GetString("ossAccessKeySecret"),
			OSSBucket:          v.GetString("ossBucket"),
		},
		Quiz: QuizConfig{
			SelectionTTL: v.GetDuration("quizSelectionTTL"),
		},
		Convert: ConvertConfig{
			Enabled: v.GetBool("convertEnabled"),
			Binary:  v.GetString("convertBinary"),
			Timeout: v.GetDuration("convertTimeout"),
		},
	}
}

func parseAddress(s string) mail.Address {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return mail.Address{Address: s}
	}
	return *addr
}
