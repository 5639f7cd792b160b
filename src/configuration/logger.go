package configuration

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
// An unknown level falls back to debug.
func (p *Properties) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(p.LogLevel)
	if err != nil {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	if p.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Fields is the non-secret part of the config, for the startup log line.
func (p *Properties) Fields() logrus.Fields {
	return logrus.Fields{
		"port":           p.Server.Port,
		"auth_provider":  p.Auth.Provider,
		"s3_driver":      p.S3.Driver,
		"s3_host":        p.S3.Host,
		"bucket":         p.S3.Bucket,
		"db_driver":      p.DB.Driver,
		"session_store":  p.Session.Store,
		"functions_url":  p.Functions.URL,
		"reconcile_tick": p.Reconcile.Interval.String(),
	}
}
