// Package config defines the static configuration of a gridbot: its geometry, motion and
// sensing thresholds, task timing, the simulator and the match parameters.
package config

import (
	"fmt"
	"time"

	"go.viam.com/utils"

	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/spatialmath"
)

// Config is the full configuration of a robot.
type Config struct {
	Geometry     GeometryConfig     `json:"geometry"`
	Motion       MotionConfig       `json:"motion"`
	Localization LocalizationConfig `json:"localization"`
	Navigation   NavigationConfig   `json:"navigation"`
	Timing       TimingConfig       `json:"timing"`
	Sensors      SensorsConfig      `json:"sensors"`
	Sim          SimConfig          `json:"sim"`
	Match        MatchConfig        `json:"match"`
	LogLevel     string             `json:"log_level,omitempty"`

	ConfigFilePath string `json:"-"`
}

// GeometryConfig describes the board and the robot's physical dimensions. Lengths are in
// centimetres.
type GeometryConfig struct {
	TileLengthCM        float64 `json:"tile_length_cm"`
	BoardTiles          int     `json:"board_tiles"`
	WheelRadiusCM       float64 `json:"wheel_radius_cm"`
	WheelBaseCM         float64 `json:"wheel_base_cm"`
	LightSensorOffsetCM float64 `json:"light_sensor_offset_cm"`
}

// MotionConfig holds the wheel speeds used for translation and rotation.
type MotionConfig struct {
	ForwardSpeedDegsPerSec float64 `json:"forward_speed_degs_per_sec"`
	RotateSpeedDegsPerSec  float64 `json:"rotate_speed_degs_per_sec"`
	// RightWheelMultiplier compensates for a right motor that runs slower than the left.
	RightWheelMultiplier float64 `json:"right_wheel_multiplier,omitempty"`
}

// LocalizationConfig holds the perimeter and grid-line localizer thresholds.
type LocalizationConfig struct {
	RangeThresholdCM  float64 `json:"range_threshold_cm"`
	RangeMarginCM     float64 `json:"range_margin_cm"`
	LightThreshold    float64 `json:"light_threshold"`
	BackupDistanceCM  float64 `json:"backup_distance_cm"`
	PremoveDistanceCM float64 `json:"premove_distance_cm"`
	NudgeDegrees      float64 `json:"nudge_degrees"`
	LineTimeoutMS     int     `json:"line_timeout_ms"`
	MaxLineRetries    int     `json:"max_line_retries"`
	// EdgeTimeoutMS bounds each edge search of the perimeter scan. Zero waits forever.
	EdgeTimeoutMS int `json:"edge_timeout_ms,omitempty"`
}

// NavigationConfig holds the waypoint navigator's convergence thresholds.
type NavigationConfig struct {
	AngleThresholdDeg   float64 `json:"angle_threshold_deg"`
	DistanceThresholdCM float64 `json:"distance_threshold_cm"`
	// MaxStepCM caps a single forward increment. Zero commands the whole remaining distance.
	MaxStepCM float64 `json:"max_step_cm,omitempty"`
	// ObstacleDistanceCM enables the avoiding state when the front range reads closer. Zero
	// disables it.
	ObstacleDistanceCM float64 `json:"obstacle_distance_cm,omitempty"`
}

// TimingConfig holds the periods of the three background tasks.
type TimingConfig struct {
	PollerPeriodMS   int `json:"poller_period_ms"`
	OdometerPeriodMS int `json:"odometer_period_ms"`
	TickPeriodMS     int `json:"tick_period_ms"`
}

// SensorsConfig configures the sensor hub.
type SensorsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// SimConfig configures the simulated world used by `--sim` and the tests.
type SimConfig struct {
	StepPeriodMS         int     `json:"step_period_ms"`
	SimDtMS              int     `json:"sim_dt_ms"`
	LineWidthCM          float64 `json:"line_width_cm"`
	LightSensorSpacingCM float64 `json:"light_sensor_spacing_cm"`
	MaxRangeCM           float64 `json:"max_range_cm"`
	FloorLevel           float64 `json:"floor_level"`
	LineLevel            float64 `json:"line_level"`
	Color                float64 `json:"color,omitempty"`
	// Start is the true starting pose. Zero values place the robot in the start square.
	StartXCM        float64 `json:"start_x_cm,omitempty"`
	StartYCM        float64 `json:"start_y_cm,omitempty"`
	StartThetaDeg   float64 `json:"start_theta_deg,omitempty"`
	HeadingErrorDeg float64 `json:"heading_error_deg,omitempty"`
}

// Zone is an axis-aligned rectangle on the board in tile coordinates.
type Zone struct {
	LowerLeft  spatialmath.Waypoint `json:"lower_left"`
	UpperRight spatialmath.Waypoint `json:"upper_right"`
}

// Contains returns whether w lies inside the zone, edges included.
func (z Zone) Contains(w spatialmath.Waypoint) bool {
	return w.X >= z.LowerLeft.X && w.X <= z.UpperRight.X &&
		w.Y >= z.LowerLeft.Y && w.Y <= z.UpperRight.Y
}

// MatchConfig holds the parameters of one match. It is resolved once at startup and never
// mutated afterwards.
type MatchConfig struct {
	StartCorner   int                  `json:"start_corner"`
	// HomeZone bounds the path to the crossing. It is unchecked when left empty.
	HomeZone      Zone                 `json:"home_zone"`
	CrossingStart spatialmath.Waypoint `json:"crossing_start"`
	CrossingEnd   spatialmath.Waypoint `json:"crossing_end"`
	SearchZone    Zone                 `json:"search_zone"`
	FlagColor     int                  `json:"flag_color"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if err := cfg.Geometry.Validate(joinPath(path, "geometry")); err != nil {
		return err
	}
	if err := cfg.Motion.Validate(joinPath(path, "motion")); err != nil {
		return err
	}
	if err := cfg.Localization.Validate(joinPath(path, "localization")); err != nil {
		return err
	}
	if err := cfg.Navigation.Validate(joinPath(path, "navigation")); err != nil {
		return err
	}
	if err := cfg.Timing.Validate(joinPath(path, "timing")); err != nil {
		return err
	}
	if err := cfg.Sensors.Validate(joinPath(path, "sensors")); err != nil {
		return err
	}
	if err := cfg.Sim.Validate(joinPath(path, "sim")); err != nil {
		return err
	}
	if err := cfg.Match.Validate(joinPath(path, "match"), cfg.Geometry.BoardTiles); err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		if _, err := logging.LevelFromString(cfg.LogLevel); err != nil {
			return utils.NewConfigValidationError(joinPath(path, "log_level"), err)
		}
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *GeometryConfig) Validate(path string) error {
	if cfg.TileLengthCM <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "tile_length_cm")
	}
	if cfg.BoardTiles < 2 {
		return utils.NewConfigValidationError(path,
			fmt.Errorf("board_tiles must be at least 2, not %d", cfg.BoardTiles))
	}
	if cfg.WheelRadiusCM <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "wheel_radius_cm")
	}
	if cfg.WheelBaseCM <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "wheel_base_cm")
	}
	if cfg.LightSensorOffsetCM < 0 || cfg.LightSensorOffsetCM >= cfg.TileLengthCM/2 {
		return utils.NewConfigValidationError(path,
			fmt.Errorf("light_sensor_offset_cm must be in [0, %g), not %g", cfg.TileLengthCM/2, cfg.LightSensorOffsetCM))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *MotionConfig) Validate(path string) error {
	if cfg.ForwardSpeedDegsPerSec <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "forward_speed_degs_per_sec")
	}
	if cfg.RotateSpeedDegsPerSec <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "rotate_speed_degs_per_sec")
	}
	if cfg.RightWheelMultiplier < 0 {
		return utils.NewConfigValidationError(path, fmt.Errorf("right_wheel_multiplier cannot be negative"))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *LocalizationConfig) Validate(path string) error {
	if cfg.RangeThresholdCM <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "range_threshold_cm")
	}
	if cfg.RangeMarginCM < 0 || cfg.RangeMarginCM >= cfg.RangeThresholdCM {
		return utils.NewConfigValidationError(path,
			fmt.Errorf("range_margin_cm must be in [0, range_threshold_cm), not %g", cfg.RangeMarginCM))
	}
	if cfg.LightThreshold <= 0 || cfg.LightThreshold >= 1 {
		return utils.NewConfigValidationError(path,
			fmt.Errorf("light_threshold must be in (0, 1), not %g", cfg.LightThreshold))
	}
	if cfg.BackupDistanceCM <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "backup_distance_cm")
	}
	if cfg.PremoveDistanceCM <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "premove_distance_cm")
	}
	if cfg.NudgeDegrees <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "nudge_degrees")
	}
	if cfg.LineTimeoutMS <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "line_timeout_ms")
	}
	if cfg.MaxLineRetries < 0 {
		return utils.NewConfigValidationError(path, fmt.Errorf("max_line_retries cannot be negative"))
	}
	if cfg.EdgeTimeoutMS < 0 {
		return utils.NewConfigValidationError(path, fmt.Errorf("edge_timeout_ms cannot be negative"))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *NavigationConfig) Validate(path string) error {
	if cfg.AngleThresholdDeg <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "angle_threshold_deg")
	}
	if cfg.DistanceThresholdCM <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "distance_threshold_cm")
	}
	if cfg.MaxStepCM < 0 {
		return utils.NewConfigValidationError(path, fmt.Errorf("max_step_cm cannot be negative"))
	}
	if cfg.MaxStepCM > 0 && cfg.MaxStepCM <= cfg.DistanceThresholdCM {
		return utils.NewConfigValidationError(path,
			fmt.Errorf("max_step_cm must exceed distance_threshold_cm, not %g", cfg.MaxStepCM))
	}
	if cfg.ObstacleDistanceCM < 0 {
		return utils.NewConfigValidationError(path, fmt.Errorf("obstacle_distance_cm cannot be negative"))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *TimingConfig) Validate(path string) error {
	if cfg.PollerPeriodMS <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "poller_period_ms")
	}
	if cfg.OdometerPeriodMS <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "odometer_period_ms")
	}
	if cfg.TickPeriodMS <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "tick_period_ms")
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *SensorsConfig) Validate(path string) error {
	if cfg.BufferSize < 2 {
		return utils.NewConfigValidationError(path,
			fmt.Errorf("buffer_size must be at least 2, not %d", cfg.BufferSize))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *SimConfig) Validate(path string) error {
	if cfg.StepPeriodMS <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "step_period_ms")
	}
	if cfg.SimDtMS <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "sim_dt_ms")
	}
	if cfg.LineWidthCM <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "line_width_cm")
	}
	if cfg.LightSensorSpacingCM <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "light_sensor_spacing_cm")
	}
	if cfg.MaxRangeCM <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_range_cm")
	}
	if cfg.LineLevel >= cfg.FloorLevel {
		return utils.NewConfigValidationError(path,
			fmt.Errorf("line_level (%g) must be darker than floor_level (%g)", cfg.LineLevel, cfg.FloorLevel))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *MatchConfig) Validate(path string, boardTiles int) error {
	if cfg.StartCorner < 0 || cfg.StartCorner > 3 {
		return utils.NewConfigValidationError(path,
			fmt.Errorf("start_corner must be in [0, 3], not %d", cfg.StartCorner))
	}
	board := Zone{UpperRight: spatialmath.NewWaypoint(float64(boardTiles), float64(boardTiles))}
	for name, w := range map[string]spatialmath.Waypoint{
		"crossing_start": cfg.CrossingStart,
		"crossing_end":   cfg.CrossingEnd,
	} {
		if !board.Contains(w) {
			return utils.NewConfigValidationError(path, fmt.Errorf("%s %v is off the board", name, w))
		}
	}
	for name, z := range map[string]Zone{"home_zone": cfg.HomeZone, "search_zone": cfg.SearchZone} {
		if z.LowerLeft.X > z.UpperRight.X || z.LowerLeft.Y > z.UpperRight.Y {
			return utils.NewConfigValidationError(path, fmt.Errorf("%s corners are inverted", name))
		}
	}
	return nil
}

// TilePoint returns the centimetre position of tile coordinate w.
func (cfg *GeometryConfig) TilePoint(w spatialmath.Waypoint) spatialmath.Pose {
	return spatialmath.Pose{X: w.X * cfg.TileLengthCM, Y: w.Y * cfg.TileLengthCM}
}

// LineTimeout returns LineTimeoutMS as a duration.
func (cfg *LocalizationConfig) LineTimeout() time.Duration {
	return time.Duration(cfg.LineTimeoutMS) * time.Millisecond
}

// EdgeTimeout returns EdgeTimeoutMS as a duration. Zero means no timeout.
func (cfg *LocalizationConfig) EdgeTimeout() time.Duration {
	return time.Duration(cfg.EdgeTimeoutMS) * time.Millisecond
}

// PollerPeriod returns PollerPeriodMS as a duration.
func (cfg *TimingConfig) PollerPeriod() time.Duration {
	return time.Duration(cfg.PollerPeriodMS) * time.Millisecond
}

// OdometerPeriod returns OdometerPeriodMS as a duration.
func (cfg *TimingConfig) OdometerPeriod() time.Duration {
	return time.Duration(cfg.OdometerPeriodMS) * time.Millisecond
}

// TickPeriod returns TickPeriodMS as a duration.
func (cfg *TimingConfig) TickPeriod() time.Duration {
	return time.Duration(cfg.TickPeriodMS) * time.Millisecond
}

// StepPeriod returns StepPeriodMS as a duration.
func (cfg *SimConfig) StepPeriod() time.Duration {
	return time.Duration(cfg.StepPeriodMS) * time.Millisecond
}

// SimDt returns SimDtMS as a duration.
func (cfg *SimConfig) SimDt() time.Duration {
	return time.Duration(cfg.SimDtMS) * time.Millisecond
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
