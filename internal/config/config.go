// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ColonelBlimp/anetz/internal/callctl"
	"github.com/ColonelBlimp/anetz/internal/dsp"
	"github.com/ColonelBlimp/anetz/internal/paging"
)

const (
	AppName       = "anetz"
	ConfigType    = "yaml"
	DefaultConfig = `# A-Netz base station configuration

# Audio device settings
device_index: -1        # -1 for default device
sample_rate: 8000       # Audio sample rate in Hz
chunk_ms: 10            # Processing chunk in milliseconds
channels: 1             # Radio channels, one per audio channel of the device

# Supervisory tones
guard_tone: 2280        # Sent by the base station while a channel is free (Hz)
call_tone: 1750         # Sent by the mobile to call, answer and release (Hz)

# Tone detection
tone_threshold: 0.5     # Tone amplitude relative to the chunk level
min_level: 0.05         # Minimum chunk level for any tone to count
detect_count: 5         # Consecutive chunks to confirm a tone
lost_count: 5           # Consecutive chunks to lose a confirmed tone
window: false           # Hamming window on the Goertzel bins

# Carrier supervision
loss_threshold: 0.01    # Level below which the carrier counts as missing
loss_duration: 2s       # How long the carrier may be missing during a call

# Transmitter
tx_amplitude: 0.8       # Peak of a single tone, 1.0 = full scale
paging_mode: simultaneous  # simultaneous or sequential
paging_tone_ms: 100     # Tone length in sequential paging

# Call control
paging_timeout: 20s     # Time the called station has to answer
release_holdoff: 1s     # Guard tone after a release before the channel is free
operator_number: "01010"  # Dialed for calls from the radio side

# Output
log_level: info         # debug, info, warn or error
debug: false            # Enable debug output
`
)

// Paging modes
const (
	PagingSimultaneous = "simultaneous"
	PagingSequential   = "sequential"
)

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex int     `mapstructure:"device_index"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ChunkMS     int     `mapstructure:"chunk_ms"`
	Channels    int     `mapstructure:"channels"`

	// Supervisory tones
	GuardTone float64 `mapstructure:"guard_tone"`
	CallTone  float64 `mapstructure:"call_tone"`

	// Tone detection
	ToneThreshold float64 `mapstructure:"tone_threshold"`
	MinLevel      float64 `mapstructure:"min_level"`
	DetectCount   int     `mapstructure:"detect_count"`
	LostCount     int     `mapstructure:"lost_count"`
	Window        bool    `mapstructure:"window"`

	// Carrier supervision
	LossThreshold float64       `mapstructure:"loss_threshold"`
	LossDuration  time.Duration `mapstructure:"loss_duration"`

	// Transmitter
	TxAmplitude  float64 `mapstructure:"tx_amplitude"`
	PagingMode   string  `mapstructure:"paging_mode"`
	PagingToneMS int     `mapstructure:"paging_tone_ms"`

	// Call control
	PagingTimeout  time.Duration `mapstructure:"paging_timeout"`
	ReleaseHoldoff time.Duration `mapstructure:"release_holdoff"`
	OperatorNumber string        `mapstructure:"operator_number"`

	// Output
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/anetz/
func Init() error {
	SetDefaults()

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

// SetDefaults registers the default of every key.
func SetDefaults() {
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 8000)
	viper.SetDefault("chunk_ms", 10)
	viper.SetDefault("channels", 1)
	viper.SetDefault("guard_tone", 2280)
	viper.SetDefault("call_tone", 1750)
	viper.SetDefault("tone_threshold", 0.5)
	viper.SetDefault("min_level", 0.05)
	viper.SetDefault("detect_count", 5)
	viper.SetDefault("lost_count", 5)
	viper.SetDefault("window", false)
	viper.SetDefault("loss_threshold", 0.01)
	viper.SetDefault("loss_duration", "2s")
	viper.SetDefault("tx_amplitude", 0.8)
	viper.SetDefault("paging_mode", PagingSimultaneous)
	viper.SetDefault("paging_tone_ms", 100)
	viper.SetDefault("paging_timeout", "20s")
	viper.SetDefault("release_holdoff", "1s")
	viper.SetDefault("operator_number", "01010")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("debug", false)
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.ChunkMS < 1 || s.ChunkMS > 100 {
		errs = append(errs, fmt.Errorf("chunk_ms must be between 1 and 100, got %d", s.ChunkMS))
	}
	if s.Channels < 1 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}

	// Supervisory tones must be below Nyquist and distinguishable
	for _, tone := range []struct {
		name string
		freq float64
	}{{"guard_tone", s.GuardTone}, {"call_tone", s.CallTone}} {
		if tone.freq < 100 || tone.freq >= s.SampleRate/2 {
			errs = append(errs, fmt.Errorf("%s must be between 100 Hz and the Nyquist frequency (%v Hz), got %v", tone.name, s.SampleRate/2, tone.freq))
		}
	}
	if s.GuardTone == s.CallTone {
		errs = append(errs, fmt.Errorf("guard_tone and call_tone must differ, both are %v", s.GuardTone))
	}

	// Tone detection
	if s.ToneThreshold <= 0.0 || s.ToneThreshold > 2.0 {
		errs = append(errs, fmt.Errorf("tone_threshold must be in (0.0, 2.0], got %v", s.ToneThreshold))
	}
	if s.MinLevel < 0.0 || s.MinLevel > 1.0 {
		errs = append(errs, fmt.Errorf("min_level must be between 0.0 and 1.0, got %v", s.MinLevel))
	}
	if s.DetectCount < 1 || s.DetectCount > 50 {
		errs = append(errs, fmt.Errorf("detect_count must be between 1 and 50, got %d", s.DetectCount))
	}
	if s.LostCount < 1 || s.LostCount > 50 {
		errs = append(errs, fmt.Errorf("lost_count must be between 1 and 50, got %d", s.LostCount))
	}

	// Carrier supervision
	if s.LossThreshold <= 0.0 || s.LossThreshold > 1.0 {
		errs = append(errs, fmt.Errorf("loss_threshold must be in (0.0, 1.0], got %v", s.LossThreshold))
	}
	if s.LossDuration <= 0 {
		errs = append(errs, fmt.Errorf("loss_duration must be positive, got %v", s.LossDuration))
	}

	// Transmitter
	if s.TxAmplitude <= 0.0 || s.TxAmplitude > 1.0 {
		errs = append(errs, fmt.Errorf("tx_amplitude must be in (0.0, 1.0], got %v", s.TxAmplitude))
	}
	if s.PagingMode != PagingSimultaneous && s.PagingMode != PagingSequential {
		errs = append(errs, fmt.Errorf("paging_mode must be %s or %s, got %q", PagingSimultaneous, PagingSequential, s.PagingMode))
	}
	if s.PagingToneMS < 10 || s.PagingToneMS > 1000 {
		errs = append(errs, fmt.Errorf("paging_tone_ms must be between 10 and 1000, got %d", s.PagingToneMS))
	}

	// Call control
	if s.PagingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("paging_timeout must be positive, got %v", s.PagingTimeout))
	}
	if s.ReleaseHoldoff <= 0 {
		errs = append(errs, fmt.Errorf("release_holdoff must be positive, got %v", s.ReleaseHoldoff))
	}
	if _, err := paging.Suffix(s.OperatorNumber); err != nil {
		errs = append(errs, fmt.Errorf("operator_number: %w", err))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[s.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", s.LogLevel))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ChunkSize returns the number of samples per processing chunk
func (s *Settings) ChunkSize() int {
	return int(s.SampleRate) * s.ChunkMS / 1000
}

// Detector returns the tone detector configuration
func (s *Settings) Detector() dsp.DetectorConfig {
	return dsp.DetectorConfig{
		SampleRate:    s.SampleRate,
		ChunkSize:     s.ChunkSize(),
		Frequencies:   [2]float64{s.GuardTone, s.CallTone},
		Threshold:     s.ToneThreshold,
		MinLevel:      s.MinLevel,
		DetectCount:   s.DetectCount,
		LostCount:     s.LostCount,
		Window:        s.Window,
		LossThreshold: s.LossThreshold,
		LossDuration:  s.LossDuration,
	}
}

// Generator returns the transmit generator configuration
func (s *Settings) Generator() dsp.GeneratorConfig {
	return dsp.GeneratorConfig{
		SampleRate:   s.SampleRate,
		Amplitude:    s.TxAmplitude,
		Sequential:   s.PagingMode == PagingSequential,
		ToneDuration: time.Duration(s.PagingToneMS) * time.Millisecond,
	}
}

// Channel returns the configuration of radio channel id
func (s *Settings) Channel(id int) callctl.ChannelConfig {
	return callctl.ChannelConfig{
		ID:        id,
		Detector:  s.Detector(),
		Generator: s.Generator(),
		Params: callctl.Params{
			PagingTimeout:  s.PagingTimeout,
			ReleaseHoldoff: s.ReleaseHoldoff,
			OperatorNumber: s.OperatorNumber,
		},
	}
}
