package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var Conf *Config

type Config struct {
	Debug    bool
	TestMode bool
	Env      string // DEV (local; default), TEST, QA, PROD
	AppName  string
	Build    string
	WorkDir  string

	SecretKey string
	// AdminSecret is the shared elevated-privilege credential required to
	// reject an application or re-approve a rejected one. It is held in
	// server config only and compared in constant time.
	AdminSecret string

	SendgridApiKey   string
	RollbarToken     string
	defaultFromEmail string

	Server struct {
		Host                      string
		Addr                      string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		KeepaliveInterval         time.Duration
	}

	Database struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	// Notify holds the externally configured recipient lists, keyed by
	// notification category. An empty list is a no-op.
	Notify struct {
		ApplicationEmails []string
	}
}

func (conf *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: conf.AppName, Address: conf.defaultFromEmail}
}

func (conf *Config) IsProd() bool { return conf.Env == "PROD" }

func (conf *Config) DatabaseAddress() string {
	return net.JoinHostPort(conf.Database.Host, conf.Database.Port)
}

func init() {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Tukio")
	v.SetDefault("secretKey", "w#3r)unb$+57=dz&qoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("adminSecret", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddr", ":8000")
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("keepaliveInterval", 25*time.Second)
	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "tukio")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseDisableTLS", true)
	v.SetDefault("notifyApplicationEmails", []string{})

	env := os.Getenv("ENV")
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	Conf = &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              env,
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		WorkDir:          Getwd(),
		SecretKey:        v.GetString("secretKey"),
		AdminSecret:      v.GetString("adminSecret"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}
	Conf.Server.Host = v.GetString("serverHost")
	Conf.Server.Addr = v.GetString("serverAddr")
	Conf.Server.JWTExpirationDelta = v.GetDuration("jwtExpirationDelta")
	Conf.Server.JWTRefreshExpirationDelta = v.GetDuration("jwtRefreshExpirationDelta")
	Conf.Server.KeepaliveInterval = v.GetDuration("keepaliveInterval")
	Conf.Database.Engine = v.GetString("databaseEngine")
	Conf.Database.Name = v.GetString("databaseName")
	Conf.Database.User = v.GetString("databaseUser")
	Conf.Database.Password = v.GetString("databasePassword")
	Conf.Database.AdminUser = v.GetString("databaseAdminUser")
	Conf.Database.AdminPassword = v.GetString("databaseAdminPassword")
	Conf.Database.Host = v.GetString("databaseHost")
	Conf.Database.Port = v.GetString("databasePort")
	Conf.Database.DisableTLS = v.GetBool("databaseDisableTLS")
	Conf.Notify.ApplicationEmails = v.GetStringSlice("notifyApplicationEmails")
}

// Getwd returns the app's root dir.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.Getwd: %v", err)
	}
	return wd
}
