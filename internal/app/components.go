package app

import (
	"database/sql"
	"errors"
	"log/slog"

	"go.bug.st/serial"

	"thermalguard/internal/actionlog"
	"thermalguard/internal/alert"
	"thermalguard/internal/arduinocloud"
	"thermalguard/internal/calibration"
	"thermalguard/internal/config"
	"thermalguard/internal/cooldown"
	"thermalguard/internal/db"
	"thermalguard/internal/migrate"
	"thermalguard/internal/relay"
)

// Components is everything a command may need. Optional parts are nil when
// not configured or unavailable; only the database is required.
type Components struct {
	Table *calibration.Table

	SMS    *alert.SMSTrigger
	Tokens *arduinocloud.TokenManager

	Relay     *relay.Controller
	RelayPort serial.Port

	DB       *sql.DB
	Actions  actionlog.Repository
	Recorder *actionlog.Recorder
}

func Open(cfg config.Config, logger *slog.Logger) (*Components, error) {
	conn, err := db.Open(cfg.SQLitePath, logger)
	if err != nil {
		return nil, err
	}
	if err := migrate.Run(conn, logger); err != nil {
		_ = db.Close(conn)
		return nil, err
	}

	c := &Components{DB: conn}
	c.Actions = actionlog.NewRepository(conn)
	c.Recorder = actionlog.NewRecorder(c.Actions, logger)

	// A missing table only disables temperature conversion.
	c.Table, _ = calibration.Load(cfg.PixelValuesPath, cfg.KnownTempsPath, logger)

	if cfg.CloudConfigured() {
		var client *arduinocloud.Client
		client, c.Tokens = arduinocloud.FromConfig(cfg, logger)
		c.SMS = alert.NewSMSTrigger(
			client,
			alert.SMSProperties{
				Recipient: cfg.PropertyRecipient,
				Message:   cfg.PropertyMessage,
				Send:      cfg.PropertySendSMS,
			},
			cooldown.New(cfg.ActionCooldown),
			logger,
		)
	} else {
		logger.Warn("cloud settings incomplete, sms disabled", "missing", cfg.MissingCloudSettings())
	}

	c.Relay = relay.NewController(cooldown.New(cfg.ActionCooldown), logger)
	if cfg.SerialPort != "" {
		port, err := relay.OpenSerial(cfg.SerialPort, cfg.SerialBaud)
		if err != nil {
			logger.Error("relay board unavailable", "port", cfg.SerialPort, "error", err)
		} else {
			c.RelayPort = port
			logger.Info("relay board connected", "port", cfg.SerialPort, "baud", cfg.SerialBaud)
		}
	}

	return c, nil
}

func (c *Components) Close() error {
	var errs []error
	if c.RelayPort != nil {
		errs = append(errs, c.RelayPort.Close())
	}
	errs = append(errs, db.Close(c.DB))
	return errors.Join(errs...)
}
