package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/physic"
)

// Config holds all application configuration values.
type Config struct {
	// Calibration
	InputRate          physic.Frequency // sample rate of the recorded sequence
	GyroTargetRate     physic.Frequency // rate unit the expected gyro values are expressed in
	PrecisionScale     int              // expected rates are multiplied by 2^PrecisionScale
	GyroCutoffFraction float64
	GyroFullScale      float64
	ExpectedFullScale  float64 // 0 means same as GyroFullScale
	VolumePreserving   bool
	OffsetEstimated    bool
	RegularizeDivs     int
	Window             string // "forward" or "centered"
	RotationMethod     string // "frame" or "svd"
	GyroRateFactor     float64
	GyroCrossAxis      bool
	NormalizeGyro      bool
	Degrees            bool

	// MQTT
	MQTTBroker            string
	MQTTClientIDCapture   string
	MQTTClientIDCalibrate string
	MQTTClientIDConsole   string

	// Topics
	TopicIMU         string
	TopicCalibration string

	// Serial capture
	SerialPort     string
	SerialBaudRate int

	CaptureMaxSamples int

	// Web Server
	WebServerPort int

	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the values used for every key the file does not set.
func Default() *Config {
	return &Config{
		InputRate:          100 * physic.Hertz,
		GyroTargetRate:     1 * physic.Hertz,
		GyroCutoffFraction: 0.9,
		GyroFullScale:      32768,
		OffsetEstimated:    true,
		RegularizeDivs:     8,
		Window:             "forward",
		RotationMethod:     "frame",
		GyroRateFactor:     1,

		MQTTBroker:            "tcp://localhost:1883",
		MQTTClientIDCapture:   "imu-calibration-capture",
		MQTTClientIDCalibrate: "imu-calibration-publisher",
		MQTTClientIDConsole:   "imu-calibration-console",

		TopicIMU:         "inertial/imu/left",
		TopicCalibration: "inertial/calibration",

		SerialPort:     "/dev/ttyUSB0",
		SerialBaudRate: 115200,

		CaptureMaxSamples: 6000,
		WebServerPort:     8080,
		LogLevel:          "info",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default().
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFrequency(key, value string) (physic.Frequency, error) {
	// Bare numbers are taken as Hz.
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		value += "Hz"
	}
	var f physic.Frequency
	if err := f.Set(value); err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, f)
	}
	return f, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Calibration
	case "CAL_INPUT_HZ":
		c.InputRate, err = parseFrequency(key, value)
	case "CAL_GYRO_TARGET_HZ":
		c.GyroTargetRate, err = parseFrequency(key, value)
	case "CAL_PRECISION_SCALE":
		val, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid CAL_PRECISION_SCALE %q: %w", value, perr)
		}
		if val < 0 || val > 30 {
			return fmt.Errorf("CAL_PRECISION_SCALE must be 0-30, got %d", val)
		}
		c.PrecisionScale = val
	case "CAL_GYRO_CUTOFF_FRACTION":
		val, perr := parseFloat(key, value)
		if perr != nil {
			return perr
		}
		if val <= 0 || val > 1 {
			return fmt.Errorf("CAL_GYRO_CUTOFF_FRACTION must be in (0, 1], got %v", val)
		}
		c.GyroCutoffFraction = val
	case "CAL_GYRO_FULL_SCALE":
		c.GyroFullScale, err = parseFloat(key, value)
	case "CAL_EXPECTED_FULL_SCALE":
		c.ExpectedFullScale, err = parseFloat(key, value)
	case "CAL_VOLUME_PRESERVING":
		c.VolumePreserving, err = parseBool(key, value)
	case "CAL_OFFSET_ESTIMATED":
		c.OffsetEstimated, err = parseBool(key, value)
	case "CAL_REGULARIZE_DIVS":
		val, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid CAL_REGULARIZE_DIVS %q: %w", value, perr)
		}
		if val < 0 || val > 64 {
			return fmt.Errorf("CAL_REGULARIZE_DIVS must be 0-64 (0 disables), got %d", val)
		}
		c.RegularizeDivs = val
	case "CAL_WINDOW":
		v := strings.ToLower(value)
		if v != "forward" && v != "centered" {
			return fmt.Errorf("CAL_WINDOW must be forward or centered, got %q", value)
		}
		c.Window = v
	case "CAL_ROTATION_METHOD":
		v := strings.ToLower(value)
		if v != "frame" && v != "svd" {
			return fmt.Errorf("CAL_ROTATION_METHOD must be frame or svd, got %q", value)
		}
		c.RotationMethod = v
	case "CAL_GYRO_RATE_FACTOR":
		c.GyroRateFactor, err = parseFloat(key, value)
	case "CAL_GYRO_CROSS_AXIS":
		c.GyroCrossAxis, err = parseBool(key, value)
	case "CAL_NORMALIZE_GYRO":
		c.NormalizeGyro, err = parseBool(key, value)
	case "CAL_DEGREES":
		c.Degrees, err = parseBool(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CAPTURE":
		c.MQTTClientIDCapture = value
	case "MQTT_CLIENT_ID_CALIBRATE":
		c.MQTTClientIDCalibrate = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_IMU":
		c.TopicIMU = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, perr)
		}
		c.SerialBaudRate = rate

	case "CAPTURE_MAX_SAMPLES":
		n, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid CAPTURE_MAX_SAMPLES %q: %w", value, perr)
		}
		c.CaptureMaxSamples = n

	// Web Server
	case "WEB_SERVER_PORT":
		port, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, perr)
		}
		c.WebServerPort = port

	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks values that depend on each other or must be set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.GyroFullScale <= 0 {
		return fmt.Errorf("CAL_GYRO_FULL_SCALE must be positive, got %v", c.GyroFullScale)
	}
	if c.ExpectedFullScale < 0 {
		return fmt.Errorf("CAL_EXPECTED_FULL_SCALE must be 0 or positive, got %v", c.ExpectedFullScale)
	}
	if c.GyroRateFactor <= 0 {
		return fmt.Errorf("CAL_GYRO_RATE_FACTOR must be positive, got %v", c.GyroRateFactor)
	}
	if c.SerialBaudRate <= 0 {
		return fmt.Errorf("SERIAL_BAUD_RATE must be positive, got %d", c.SerialBaudRate)
	}
	if c.CaptureMaxSamples <= 0 {
		return fmt.Errorf("CAPTURE_MAX_SAMPLES must be positive, got %d", c.CaptureMaxSamples)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	return nil
}

// Hertz converts a frequency to float Hz.
func Hertz(f physic.Frequency) float64 {
	return float64(f) / float64(physic.Hertz)
}

// InitGlobal initializes the global configuration from file.
// An empty path uses Default() without reading anything.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		if configPath == "" {
			globalConfig = Default()
			return
		}
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
