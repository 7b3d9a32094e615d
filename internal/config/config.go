package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultRideRequestDelay  = 2 * time.Second
	defaultProximityPoll     = 2 * time.Second
	defaultPickupCountdown   = 5 * time.Second
	defaultPaymentDelay      = 5 * time.Second
	defaultSettleDelay       = 10 * time.Second
	defaultArrivalRadius     = 50.0
	defaultStepAdvanceRadius = 50.0
	defaultVADChunkInterval  = 3 * time.Second
	defaultSilentChunkLimit  = 2
	defaultInteractTimeout   = 30 * time.Second
	defaultRoutingTimeout    = 10 * time.Second
	defaultMinMoveMeters     = 5
	defaultRecordingsDir     = "./recordings"
	defaultSimSpeedKPH       = 40.0
)

// Config aggregates runtime configuration for the driver session.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
	Backend struct {
		BaseURL     string `yaml:"base_url"`
		TokenSecret string `yaml:"token_secret"`
		DevMode     bool   `yaml:"dev_mode"`
	} `yaml:"backend"`
	Maps struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"maps"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Ride struct {
		RequestDelay      time.Duration `yaml:"request_delay"`
		ProximityPoll     time.Duration `yaml:"proximity_poll"`
		PickupCountdown   time.Duration `yaml:"pickup_countdown"`
		PaymentDelay      time.Duration `yaml:"payment_delay"`
		SettleDelay       time.Duration `yaml:"settle_delay"`
		ArrivalRadius     float64       `yaml:"arrival_radius_meters"`
		StepAdvanceRadius float64       `yaml:"step_advance_radius_meters"`
		RoutingTimeout    time.Duration `yaml:"routing_timeout"`
	} `yaml:"ride"`
	Voice struct {
		ChunkInterval    time.Duration `yaml:"chunk_interval"`
		SilentChunkLimit int           `yaml:"silent_chunk_limit"`
		InteractTimeout  time.Duration `yaml:"interact_timeout"`
		RecordingsDir    string        `yaml:"recordings_dir"`
	} `yaml:"voice"`
	Location struct {
		MinMoveMeters int     `yaml:"min_move_meters"`
		SimSpeedKPH   float64 `yaml:"sim_speed_kph"`
	} `yaml:"location"`
	Customer struct {
		Name            string `yaml:"name"`
		Rating          string `yaml:"rating"`
		OriginName      string `yaml:"origin_name"`
		DestinationName string `yaml:"destination_name"`
		Fare            string `yaml:"fare"`
	} `yaml:"customer"`
}

// Load reads configuration from an optional YAML file and applies environment
// overrides plus defaults.
func Load(path string) (Config, error) {
	var cfg Config
	cfg.applyDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	if v := os.Getenv("BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("BACKEND_TOKEN_SECRET"); v != "" {
		cfg.Backend.TokenSecret = v
	}
	if v := os.Getenv("DEV_MODE"); v != "" {
		devMode, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DEV_MODE: %w", err)
		}
		cfg.Backend.DevMode = devMode
	}
	if v := os.Getenv("GOOGLE_MAPS_API_KEY"); v != "" {
		cfg.Maps.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RECORDINGS_DIR"); v != "" {
		cfg.Voice.RecordingsDir = v
	}
	if v, err := readIntEnv("MIN_MOVE_METERS"); err != nil {
		return Config{}, fmt.Errorf("parse MIN_MOVE_METERS: %w", err)
	} else if v != nil {
		cfg.Location.MinMoveMeters = *v
	}
	if v, err := readIntEnv("SILENT_CHUNK_LIMIT"); err != nil {
		return Config{}, fmt.Errorf("parse SILENT_CHUNK_LIMIT: %w", err)
	} else if v != nil {
		cfg.Voice.SilentChunkLimit = *v
	}

	if cfg.Backend.BaseURL == "" {
		return Config{}, fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if !cfg.Backend.DevMode && cfg.Backend.TokenSecret == "" {
		return Config{}, fmt.Errorf("BACKEND_TOKEN_SECRET is required outside dev mode")
	}
	if cfg.Voice.SilentChunkLimit <= 0 {
		return Config{}, fmt.Errorf("silent chunk limit must be positive")
	}
	if cfg.Ride.ArrivalRadius <= 0 || cfg.Ride.StepAdvanceRadius <= 0 {
		return Config{}, fmt.Errorf("radius values must be positive")
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Server.Address = ":4005"
	c.Ride.RequestDelay = defaultRideRequestDelay
	c.Ride.ProximityPoll = defaultProximityPoll
	c.Ride.PickupCountdown = defaultPickupCountdown
	c.Ride.PaymentDelay = defaultPaymentDelay
	c.Ride.SettleDelay = defaultSettleDelay
	c.Ride.ArrivalRadius = defaultArrivalRadius
	c.Ride.StepAdvanceRadius = defaultStepAdvanceRadius
	c.Ride.RoutingTimeout = defaultRoutingTimeout
	c.Voice.ChunkInterval = defaultVADChunkInterval
	c.Voice.SilentChunkLimit = defaultSilentChunkLimit
	c.Voice.InteractTimeout = defaultInteractTimeout
	c.Voice.RecordingsDir = defaultRecordingsDir
	c.Location.MinMoveMeters = defaultMinMoveMeters
	c.Location.SimSpeedKPH = defaultSimSpeedKPH
}

func readIntEnv(name string) (*int, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
