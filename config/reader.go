package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"github.com/ecse211/gridbot/logging"
)

// Default values for every tunable, measured on the competition robot.
const (
	DefaultTileLengthCM        = 30.48
	DefaultBoardTiles          = 12
	DefaultWheelRadiusCM       = 2.1
	DefaultWheelBaseCM         = 15.225
	DefaultLightSensorOffsetCM = 2.23

	DefaultForwardSpeed         = 175
	DefaultRotateSpeed          = 100
	DefaultRightWheelMultiplier = 1.003

	DefaultRangeThresholdCM  = 50
	DefaultRangeMarginCM     = 2
	DefaultLightThreshold    = 0.3
	DefaultBackupDistanceCM  = 8
	DefaultPremoveDistanceCM = 12
	DefaultNudgeDegrees      = 15
	DefaultLineTimeoutMS     = 4000
	DefaultMaxLineRetries    = 3

	DefaultAngleThresholdDeg   = 1
	DefaultDistanceThresholdCM = 1

	DefaultPollerPeriodMS   = 20
	DefaultOdometerPeriodMS = 20
	DefaultTickPeriodMS     = 40

	DefaultBufferSize = 20

	DefaultSimStepPeriodMS = 1
	DefaultSimDtMS         = 10
	DefaultSimLineWidthCM  = 0.6
	DefaultSimSpacingCM    = 10
	DefaultSimMaxRangeCM   = 255
	DefaultSimFloorLevel   = 0.6
	DefaultSimLineLevel    = 0.1
)

// ApplyDefaults fills every unset tunable with its default.
func (cfg *Config) ApplyDefaults() {
	setFloat(&cfg.Geometry.TileLengthCM, DefaultTileLengthCM)
	setInt(&cfg.Geometry.BoardTiles, DefaultBoardTiles)
	setFloat(&cfg.Geometry.WheelRadiusCM, DefaultWheelRadiusCM)
	setFloat(&cfg.Geometry.WheelBaseCM, DefaultWheelBaseCM)
	setFloat(&cfg.Geometry.LightSensorOffsetCM, DefaultLightSensorOffsetCM)

	setFloat(&cfg.Motion.ForwardSpeedDegsPerSec, DefaultForwardSpeed)
	setFloat(&cfg.Motion.RotateSpeedDegsPerSec, DefaultRotateSpeed)
	setFloat(&cfg.Motion.RightWheelMultiplier, DefaultRightWheelMultiplier)

	setFloat(&cfg.Localization.RangeThresholdCM, DefaultRangeThresholdCM)
	setFloat(&cfg.Localization.RangeMarginCM, DefaultRangeMarginCM)
	setFloat(&cfg.Localization.LightThreshold, DefaultLightThreshold)
	setFloat(&cfg.Localization.BackupDistanceCM, DefaultBackupDistanceCM)
	setFloat(&cfg.Localization.PremoveDistanceCM, DefaultPremoveDistanceCM)
	setFloat(&cfg.Localization.NudgeDegrees, DefaultNudgeDegrees)
	setInt(&cfg.Localization.LineTimeoutMS, DefaultLineTimeoutMS)
	setInt(&cfg.Localization.MaxLineRetries, DefaultMaxLineRetries)

	setFloat(&cfg.Navigation.AngleThresholdDeg, DefaultAngleThresholdDeg)
	setFloat(&cfg.Navigation.DistanceThresholdCM, DefaultDistanceThresholdCM)

	setInt(&cfg.Timing.PollerPeriodMS, DefaultPollerPeriodMS)
	setInt(&cfg.Timing.OdometerPeriodMS, DefaultOdometerPeriodMS)
	setInt(&cfg.Timing.TickPeriodMS, DefaultTickPeriodMS)

	setInt(&cfg.Sensors.BufferSize, DefaultBufferSize)

	setInt(&cfg.Sim.StepPeriodMS, DefaultSimStepPeriodMS)
	setInt(&cfg.Sim.SimDtMS, DefaultSimDtMS)
	setFloat(&cfg.Sim.LineWidthCM, DefaultSimLineWidthCM)
	setFloat(&cfg.Sim.LightSensorSpacingCM, DefaultSimSpacingCM)
	setFloat(&cfg.Sim.MaxRangeCM, DefaultSimMaxRangeCM)
	setFloat(&cfg.Sim.FloorLevel, DefaultSimFloorLevel)
	setFloat(&cfg.Sim.LineLevel, DefaultSimLineLevel)
}

// Default returns a config with every tunable at its default and a match starting in corner 0.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Read reads a config from the given file, expanding environment variables first.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", filePath)
	}

	cfg, err := FromReader(filePath, bytes.NewReader(buf), logger)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromReader reads a config from the given reader and specifies where, if applicable, the file
// the reader originated from. Unknown keys are logged and ignored.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	var attributes map[string]interface{}
	if err := json.NewDecoder(r).Decode(&attributes); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json")
	}

	cfg := &Config{ConfigFilePath: originalPath}
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config attributes")
	}
	for _, key := range md.Unused {
		logger.Warnw("ignoring unknown config key", "key", key, "path", originalPath)
	}

	// An explicit max_line_retries of 0 disables the line sweep.
	retries := cfg.Localization.MaxLineRetries
	cfg.ApplyDefaults()
	if hasKey(attributes, "localization", "max_line_retries") {
		cfg.Localization.MaxLineRetries = retries
	}
	if err := cfg.Validate(""); err != nil {
		return nil, errors.Wrap(err, "failed to process Config")
	}
	return cfg, nil
}

// hasKey returns whether the nested key path is present in attributes.
func hasKey(attributes map[string]interface{}, path ...string) bool {
	for i, key := range path {
		v, ok := attributes[key]
		if !ok {
			return false
		}
		if i == len(path)-1 {
			return true
		}
		if attributes, ok = v.(map[string]interface{}); !ok {
			return false
		}
	}
	return false
}

func setFloat(field *float64, def float64) {
	if *field == 0 {
		*field = def
	}
}

func setInt(field *int, def int) {
	if *field == 0 {
		*field = def
	}
}
