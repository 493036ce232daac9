package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"thermalguard/internal/config"
	"thermalguard/internal/httpapi"
	"thermalguard/internal/mqtt"
	"thermalguard/internal/screening"
	"thermalguard/internal/types"
)

// Run is the watch daemon: frames from MQTT go through screening, and the
// HTTP API serves health and the action log until ctx is done.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"serialPort", cfg.SerialPort,
		"cooldown", cfg.ActionCooldown,
		"feverThresholdC", cfg.FeverThreshold,
	)

	comps, err := Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Error("close components", "error", err)
		}
	}()

	mqttClient := mqtt.NewClient(cfg, logger)

	opts := screening.Options{
		Table:          comps.Table,
		Recipient:      cfg.AlertRecipient,
		Relay:          comps.Relay,
		Recorder:       comps.Recorder,
		Events:         mqttClient,
		FeverThreshold: cfg.FeverThreshold,
		MinDistance:    cfg.MinDistance,
		Logger:         logger,
	}
	if comps.SMS != nil {
		opts.SMS = comps.SMS
	}
	if comps.RelayPort != nil {
		opts.RelayDevice = comps.RelayPort
	}
	svc := screening.New(opts)

	mqttClient.SetFrameHandler(func(ctx context.Context, f types.Frame) error {
		_, err := svc.HandleFrame(ctx, f)
		return err
	})

	// Short initial connect so a missing broker does not block the HTTP API.
	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	err = mqttClient.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Warn("mqtt connection failed (continuing, client keeps retrying)", "error", err)
	}
	defer mqttClient.Disconnect()

	deps := httpapi.Deps{
		DB:          comps.DB,
		Actions:     comps.Actions,
		Relay:       comps.Relay,
		Calibration: comps.Table,
		Logger:      logger,
	}
	if comps.SMS != nil {
		deps.SMS = comps.SMS
	}
	if comps.Tokens != nil {
		deps.Token = comps.Tokens
	}
	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(deps), logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
