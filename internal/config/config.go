package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// Arduino IoT Cloud credentials and property ids.
	ClientID          string
	ClientSecret      string
	ThingID           string
	PropertySendSMS   string
	PropertyRecipient string
	PropertyMessage   string
	TokenURL          string
	CloudAPIURL       string
	CloudHTTPTimeout  time.Duration

	ActionCooldown time.Duration

	PixelValuesPath string
	KnownTempsPath  string

	// SerialPort is the relay board device path. Empty disables the relay.
	SerialPort string
	SerialBaud int

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	FeverThreshold float64
	MinDistance    float64
	AlertRecipient string

	SQLitePath string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := envOr("HTTP_ADDR", ":8080")

	tokenURL := envOr("TOKEN_URL", "https://api2.arduino.cc/iot/v1/clients/token")
	cloudAPIURL := strings.TrimRight(envOr("CLOUD_API_URL", "https://api2.arduino.cc/iot"), "/")

	cloudHTTPTimeout, err := parsePositiveDuration("CLOUD_HTTP_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}
	actionCooldown, err := parsePositiveDuration("ACTION_COOLDOWN", "30s")
	if err != nil {
		return Config{}, err
	}

	serialBaudStr := envOr("SERIAL_BAUD", "9600")
	serialBaud, err := strconv.Atoi(serialBaudStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SERIAL_BAUD %q: %w", serialBaudStr, err)
	}
	if serialBaud <= 0 {
		return Config{}, fmt.Errorf("SERIAL_BAUD must be positive, got %d", serialBaud)
	}

	mqttPortStr := envOr("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	feverStr := envOr("FEVER_THRESHOLD_C", "37.5")
	fever, err := strconv.ParseFloat(feverStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid FEVER_THRESHOLD_C %q: %w", feverStr, err)
	}

	minDistanceStr := envOr("MIN_DISTANCE", "0")
	minDistance, err := strconv.ParseFloat(minDistanceStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MIN_DISTANCE %q: %w", minDistanceStr, err)
	}
	if minDistance < 0 {
		return Config{}, fmt.Errorf("MIN_DISTANCE must not be negative, got %v", minDistance)
	}

	return Config{
		AppEnv:   appEnv,
		LogLevel: level,
		HTTPAddr: httpAddr,

		ClientID:          strings.TrimSpace(os.Getenv("CLIENT_ID")),
		ClientSecret:      strings.TrimSpace(os.Getenv("CLIENT_SECRET")),
		ThingID:           strings.TrimSpace(os.Getenv("THING_ID")),
		PropertySendSMS:   strings.TrimSpace(os.Getenv("PROPERTY_ID_SEND_SMS")),
		PropertyRecipient: strings.TrimSpace(os.Getenv("PROPERTY_ID_RECIPIENT")),
		PropertyMessage:   strings.TrimSpace(os.Getenv("PROPERTY_ID_MESSAGE")),
		TokenURL:          tokenURL,
		CloudAPIURL:       cloudAPIURL,
		CloudHTTPTimeout:  cloudHTTPTimeout,

		ActionCooldown: actionCooldown,

		PixelValuesPath: envOr("PIXEL_VALUES_PATH", "pixel_values.txt"),
		KnownTempsPath:  envOr("KNOWN_TEMPS_PATH", "known_temps.txt"),

		SerialPort: strings.TrimSpace(os.Getenv("SERIAL_PORT")),
		SerialBaud: serialBaud,

		MQTTBroker:   envOr("MQTT_BROKER", "localhost"),
		MQTTPort:     mqttPort,
		MQTTClientID: envOr("MQTT_CLIENT_ID", "thermalguard"),
		MQTTTopic:    envOr("MQTT_TOPIC", "thermalguard/+/frames"),

		FeverThreshold: fever,
		MinDistance:    minDistance,
		AlertRecipient: strings.TrimSpace(os.Getenv("ALERT_RECIPIENT")),

		SQLitePath: envOr("SQLITE_PATH", "data/thermalguard.db"),
	}, nil
}

// CloudConfigured reports whether the credentials and every property id
// needed to trigger an SMS are set.
func (c Config) CloudConfigured() bool {
	return len(c.MissingCloudSettings()) == 0
}

// MissingCloudSettings lists the unset variables CloudConfigured needs.
func (c Config) MissingCloudSettings() []string {
	var missing []string
	for _, s := range []struct{ key, val string }{
		{"CLIENT_ID", c.ClientID},
		{"CLIENT_SECRET", c.ClientSecret},
		{"THING_ID", c.ThingID},
		{"PROPERTY_ID_RECIPIENT", c.PropertyRecipient},
		{"PROPERTY_ID_MESSAGE", c.PropertyMessage},
		{"PROPERTY_ID_SEND_SMS", c.PropertySendSMS},
	} {
		if s.val == "" {
			missing = append(missing, s.key)
		}
	}
	return missing
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	s := envOr(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
