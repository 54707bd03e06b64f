package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the estimator. All
// fields are pointers so a partial JSON file only overrides what it names;
// the Get* accessors supply defaults for everything else.
type TuningConfig struct {
	// Scan matching params
	EdgeFeatureMinValidNum          *int     `json:"edge_feature_min_valid_num,omitempty"`
	SurfFeatureMinValidNum          *int     `json:"surf_feature_min_valid_num,omitempty"`
	MappingCornerLeafSize           *float64 `json:"mapping_corner_leaf_size,omitempty"`
	MappingSurfLeafSize             *float64 `json:"mapping_surf_leaf_size,omitempty"`
	SurroundingKeyframeSearchRadius *float64 `json:"surrounding_keyframe_search_radius,omitempty"`
	SurroundingKeyframeDensity      *float64 `json:"surrounding_keyframe_density,omitempty"`
	IMURPYWeight                    *float64 `json:"imu_rpy_weight,omitempty"`
	RotationTolerance               *float64 `json:"rotation_tolerance,omitempty"`
	ZTolerance                      *float64 `json:"z_tolerance,omitempty"`
	NumberOfCores                   *int     `json:"number_of_cores,omitempty"`

	// Keyframe params
	AddDistThreshold       *float64 `json:"add_dist_threshold,omitempty"`
	AddAngleThreshold      *float64 `json:"add_angle_threshold,omitempty"`
	MappingProcessInterval *float64 `json:"mapping_process_interval,omitempty"`

	// Factor noise params (diagonal variance 6-vectors, rotation first)
	PriorOdometryVariance          []float64 `json:"prior_odometry_variance,omitempty"`
	OdometryVariance               []float64 `json:"odometry_variance,omitempty"`
	MotionVariance                 []float64 `json:"motion_variance,omitempty"`
	TightlyCoupledDetectionVar     []float64 `json:"tightly_coupled_detection_variance,omitempty"`
	LooselyCoupledDetectionVar     []float64 `json:"loosely_coupled_detection_variance,omitempty"`
	EarlyLooselyCoupledMatchingVar []float64 `json:"early_loosely_coupled_matching_variance,omitempty"`
	LooselyCoupledMatchingVar      []float64 `json:"loosely_coupled_matching_variance,omitempty"`
	TightlyCoupledMatchingVar      []float64 `json:"tightly_coupled_matching_variance,omitempty"`
	DataAssociationVar             []float64 `json:"data_association_variance,omitempty"`
	ConstantVelocityVariance       []float64 `json:"constant_velocity_variance,omitempty"`
	EarlyConstantVelocityVariance  []float64 `json:"early_constant_velocity_variance,omitempty"`

	// Tracking params
	TrackingStepsForLostObject       *int     `json:"tracking_steps_for_lost_object,omitempty"`
	NumberOfPreLooseCouplingSteps    *int     `json:"number_of_pre_loose_coupling_steps,omitempty"`
	NumberOfInterLooseCouplingSteps  *int     `json:"number_of_inter_loose_coupling_steps,omitempty"`
	NumberOfEarlySteps               *int     `json:"number_of_early_steps,omitempty"`
	NumberOfVelocityConsistencySteps *int     `json:"number_of_velocity_consistency_steps,omitempty"`
	DetectionMatchThreshold          *float64 `json:"detection_match_threshold,omitempty"`
	TightCouplingDetectionErrorThr   *float64 `json:"tight_coupling_detection_error_threshold,omitempty"`
	AngularVelocityConsistencyVarThr *float64 `json:"object_angular_velocity_consistency_variance_threshold,omitempty"`
	LinearVelocityConsistencyVarThr  *float64 `json:"object_linear_velocity_consistency_variance_threshold,omitempty"`
	SimultaneousTracking             *bool    `json:"simultaneous_tracking,omitempty"`
	DetectionTimeout                 *string  `json:"detection_timeout,omitempty"` // duration string like "200ms"

	// Loop closure params
	HistoryKeyframeSearchRadius   *float64 `json:"history_keyframe_search_radius,omitempty"`
	HistoryKeyframeSearchNum      *int     `json:"history_keyframe_search_num,omitempty"`
	HistoryKeyframeSearchTimeDiff *float64 `json:"history_keyframe_search_time_diff,omitempty"`
	HistoryKeyframeFitnessScore   *float64 `json:"history_keyframe_fitness_score,omitempty"`
	LoopClosureFrequency          *float64 `json:"loop_closure_frequency,omitempty"`
	LoopClosureEnabled            *bool    `json:"loop_closure_enabled,omitempty"`

	// GPS params
	PoseCovThreshold *float64 `json:"pose_cov_threshold,omitempty"`
	GPSCovThreshold  *float64 `json:"gps_cov_threshold,omitempty"`
	UseGPSElevation  *bool    `json:"use_gps_elevation,omitempty"`

	// Visualization params
	GlobalMapInterval *string `json:"global_map_interval,omitempty"` // duration string like "5s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	vectors := map[string][]float64{
		"prior_odometry_variance":                 c.PriorOdometryVariance,
		"odometry_variance":                       c.OdometryVariance,
		"motion_variance":                         c.MotionVariance,
		"tightly_coupled_detection_variance":      c.TightlyCoupledDetectionVar,
		"loosely_coupled_detection_variance":      c.LooselyCoupledDetectionVar,
		"early_loosely_coupled_matching_variance": c.EarlyLooselyCoupledMatchingVar,
		"loosely_coupled_matching_variance":       c.LooselyCoupledMatchingVar,
		"tightly_coupled_matching_variance":       c.TightlyCoupledMatchingVar,
		"data_association_variance":               c.DataAssociationVar,
		"constant_velocity_variance":              c.ConstantVelocityVariance,
		"early_constant_velocity_variance":        c.EarlyConstantVelocityVariance,
	}
	for name, v := range vectors {
		if v == nil {
			continue
		}
		if len(v) != 6 {
			return fmt.Errorf("%s must have 6 entries, got %d", name, len(v))
		}
		for i, x := range v {
			if x <= 0 {
				return fmt.Errorf("%s[%d] must be positive, got %f", name, i, x)
			}
		}
	}

	if c.DetectionTimeout != nil && *c.DetectionTimeout != "" {
		if _, err := time.ParseDuration(*c.DetectionTimeout); err != nil {
			return fmt.Errorf("invalid detection_timeout '%s': %w", *c.DetectionTimeout, err)
		}
	}
	if c.GlobalMapInterval != nil && *c.GlobalMapInterval != "" {
		if _, err := time.ParseDuration(*c.GlobalMapInterval); err != nil {
			return fmt.Errorf("invalid global_map_interval '%s': %w", *c.GlobalMapInterval, err)
		}
	}

	if c.AddDistThreshold != nil && *c.AddDistThreshold < 0 {
		return fmt.Errorf("add_dist_threshold must be non-negative, got %f", *c.AddDistThreshold)
	}
	if c.AddAngleThreshold != nil && *c.AddAngleThreshold < 0 {
		return fmt.Errorf("add_angle_threshold must be non-negative, got %f", *c.AddAngleThreshold)
	}
	if c.LoopClosureFrequency != nil && *c.LoopClosureFrequency <= 0 {
		return fmt.Errorf("loop_closure_frequency must be positive, got %f", *c.LoopClosureFrequency)
	}
	if c.NumberOfPreLooseCouplingSteps != nil && *c.NumberOfPreLooseCouplingSteps < 1 {
		return fmt.Errorf("number_of_pre_loose_coupling_steps must be at least 1, got %d", *c.NumberOfPreLooseCouplingSteps)
	}
	if c.NumberOfVelocityConsistencySteps != nil && *c.NumberOfVelocityConsistencySteps < 1 {
		return fmt.Errorf("number_of_velocity_consistency_steps must be at least 1, got %d", *c.NumberOfVelocityConsistencySteps)
	}

	return nil
}

// GetEdgeFeatureMinValidNum returns the edge_feature_min_valid_num value or the default.
func (c *TuningConfig) GetEdgeFeatureMinValidNum() int {
	if c.EdgeFeatureMinValidNum == nil {
		return 10
	}
	return *c.EdgeFeatureMinValidNum
}

// GetSurfFeatureMinValidNum returns the surf_feature_min_valid_num value or the default.
func (c *TuningConfig) GetSurfFeatureMinValidNum() int {
	if c.SurfFeatureMinValidNum == nil {
		return 100
	}
	return *c.SurfFeatureMinValidNum
}

// GetMappingCornerLeafSize returns the mapping_corner_leaf_size value or the default.
func (c *TuningConfig) GetMappingCornerLeafSize() float64 {
	if c.MappingCornerLeafSize == nil {
		return 0.2
	}
	return *c.MappingCornerLeafSize
}

// GetMappingSurfLeafSize returns the mapping_surf_leaf_size value or the default.
func (c *TuningConfig) GetMappingSurfLeafSize() float64 {
	if c.MappingSurfLeafSize == nil {
		return 0.4
	}
	return *c.MappingSurfLeafSize
}

// GetSurroundingKeyframeSearchRadius returns the surrounding_keyframe_search_radius value or the default.
func (c *TuningConfig) GetSurroundingKeyframeSearchRadius() float64 {
	if c.SurroundingKeyframeSearchRadius == nil {
		return 50.0
	}
	return *c.SurroundingKeyframeSearchRadius
}

// GetSurroundingKeyframeDensity returns the surrounding_keyframe_density value or the default.
func (c *TuningConfig) GetSurroundingKeyframeDensity() float64 {
	if c.SurroundingKeyframeDensity == nil {
		return 2.0
	}
	return *c.SurroundingKeyframeDensity
}

// GetIMURPYWeight returns the imu_rpy_weight value or the default.
func (c *TuningConfig) GetIMURPYWeight() float64 {
	if c.IMURPYWeight == nil {
		return 0.01
	}
	return *c.IMURPYWeight
}

// GetRotationTolerance returns the rotation_tolerance value or the default.
func (c *TuningConfig) GetRotationTolerance() float64 {
	if c.RotationTolerance == nil {
		return 1000.0
	}
	return *c.RotationTolerance
}

// GetZTolerance returns the z_tolerance value or the default.
func (c *TuningConfig) GetZTolerance() float64 {
	if c.ZTolerance == nil {
		return 1000.0
	}
	return *c.ZTolerance
}

// GetNumberOfCores returns the number_of_cores value or the default.
func (c *TuningConfig) GetNumberOfCores() int {
	if c.NumberOfCores == nil {
		return 4
	}
	return *c.NumberOfCores
}

// GetAddDistThreshold returns the add_dist_threshold value or the default.
func (c *TuningConfig) GetAddDistThreshold() float64 {
	if c.AddDistThreshold == nil {
		return 1.0
	}
	return *c.AddDistThreshold
}

// GetAddAngleThreshold returns the add_angle_threshold value or the default.
func (c *TuningConfig) GetAddAngleThreshold() float64 {
	if c.AddAngleThreshold == nil {
		return 0.2
	}
	return *c.AddAngleThreshold
}

// GetMappingProcessInterval returns the mapping_process_interval value or the default.
func (c *TuningConfig) GetMappingProcessInterval() float64 {
	if c.MappingProcessInterval == nil {
		return 0.15
	}
	return *c.MappingProcessInterval
}

func vectorOrDefault(v []float64, def [6]float64) [6]float64 {
	if len(v) != 6 {
		return def
	}
	var out [6]float64
	copy(out[:], v)
	return out
}

// GetPriorOdometryVariance returns the prior factor diagonal variance.
func (c *TuningConfig) GetPriorOdometryVariance() [6]float64 {
	return vectorOrDefault(c.PriorOdometryVariance, [6]float64{1e-2, 1e-2, 9.8696, 1e8, 1e8, 1e8})
}

// GetOdometryVariance returns the between factor diagonal variance.
func (c *TuningConfig) GetOdometryVariance() [6]float64 {
	return vectorOrDefault(c.OdometryVariance, [6]float64{1e-6, 1e-6, 1e-6, 1e-4, 1e-4, 1e-4})
}

// GetMotionVariance returns the stable-pose factor diagonal variance.
func (c *TuningConfig) GetMotionVariance() [6]float64 {
	return vectorOrDefault(c.MotionVariance, [6]float64{1e-4, 1e-4, 1e-4, 1e-2, 1e-2, 1e-2})
}

// GetTightlyCoupledDetectionVariance returns the tight detection factor diagonal variance.
func (c *TuningConfig) GetTightlyCoupledDetectionVariance() [6]float64 {
	return vectorOrDefault(c.TightlyCoupledDetectionVar, [6]float64{1e-3, 1e-3, 1e-3, 1e-2, 1e-2, 1e-2})
}

// GetLooselyCoupledDetectionVariance returns the loose detection factor diagonal variance.
func (c *TuningConfig) GetLooselyCoupledDetectionVariance() [6]float64 {
	return vectorOrDefault(c.LooselyCoupledDetectionVar, [6]float64{1e-1, 1e-1, 1e-1, 1.0, 1.0, 1.0})
}

// GetEarlyLooselyCoupledMatchingVariance returns the early matching diagonal variance.
func (c *TuningConfig) GetEarlyLooselyCoupledMatchingVariance() [6]float64 {
	return vectorOrDefault(c.EarlyLooselyCoupledMatchingVar, [6]float64{4.0, 4.0, 4.0, 8.0, 8.0, 8.0})
}

// GetLooselyCoupledMatchingVariance returns the loose matching diagonal variance.
func (c *TuningConfig) GetLooselyCoupledMatchingVariance() [6]float64 {
	return vectorOrDefault(c.LooselyCoupledMatchingVar, [6]float64{1.0, 1.0, 1.0, 2.0, 2.0, 2.0})
}

// GetTightlyCoupledMatchingVariance returns the tight matching diagonal variance.
func (c *TuningConfig) GetTightlyCoupledMatchingVariance() [6]float64 {
	return vectorOrDefault(c.TightlyCoupledMatchingVar, [6]float64{1e-1, 1e-1, 1e-1, 2e-1, 2e-1, 2e-1})
}

// GetDataAssociationVariance returns the data-association matching diagonal variance.
func (c *TuningConfig) GetDataAssociationVariance() [6]float64 {
	return vectorOrDefault(c.DataAssociationVar, [6]float64{4.0, 4.0, 4.0, 8.0, 8.0, 8.0})
}

// GetConstantVelocityVariance returns the constant-velocity factor diagonal variance.
func (c *TuningConfig) GetConstantVelocityVariance() [6]float64 {
	return vectorOrDefault(c.ConstantVelocityVariance, [6]float64{1e-3, 1e-3, 1e-3, 1e-2, 1e-2, 1e-2})
}

// GetEarlyConstantVelocityVariance returns the early constant-velocity diagonal variance.
func (c *TuningConfig) GetEarlyConstantVelocityVariance() [6]float64 {
	return vectorOrDefault(c.EarlyConstantVelocityVariance, [6]float64{1e-1, 1e-1, 1e-1, 1.0, 1.0, 1.0})
}

// GetTrackingStepsForLostObject returns the tracking_steps_for_lost_object value or the default.
func (c *TuningConfig) GetTrackingStepsForLostObject() int {
	if c.TrackingStepsForLostObject == nil {
		return 3
	}
	return *c.TrackingStepsForLostObject
}

// GetNumberOfPreLooseCouplingSteps returns the number_of_pre_loose_coupling_steps value or the default.
func (c *TuningConfig) GetNumberOfPreLooseCouplingSteps() int {
	if c.NumberOfPreLooseCouplingSteps == nil {
		return 10
	}
	return *c.NumberOfPreLooseCouplingSteps
}

// GetNumberOfInterLooseCouplingSteps returns the number_of_inter_loose_coupling_steps value or the default.
func (c *TuningConfig) GetNumberOfInterLooseCouplingSteps() int {
	if c.NumberOfInterLooseCouplingSteps == nil {
		return 5
	}
	return *c.NumberOfInterLooseCouplingSteps
}

// GetNumberOfEarlySteps returns the number_of_early_steps value or the default.
func (c *TuningConfig) GetNumberOfEarlySteps() int {
	if c.NumberOfEarlySteps == nil {
		return 3
	}
	return *c.NumberOfEarlySteps
}

// GetNumberOfVelocityConsistencySteps returns the number_of_velocity_consistency_steps value or the default.
func (c *TuningConfig) GetNumberOfVelocityConsistencySteps() int {
	if c.NumberOfVelocityConsistencySteps == nil {
		return 5
	}
	return *c.NumberOfVelocityConsistencySteps
}

// GetDetectionMatchThreshold returns the detection_match_threshold value or the default.
func (c *TuningConfig) GetDetectionMatchThreshold() float64 {
	if c.DetectionMatchThreshold == nil {
		return 25.0
	}
	return *c.DetectionMatchThreshold
}

// GetTightCouplingDetectionErrorThreshold returns the tight_coupling_detection_error_threshold value or the default.
func (c *TuningConfig) GetTightCouplingDetectionErrorThreshold() float64 {
	if c.TightCouplingDetectionErrorThr == nil {
		return 16.0
	}
	return *c.TightCouplingDetectionErrorThr
}

// GetAngularVelocityConsistencyVarianceThreshold returns the angular consistency threshold or the default.
func (c *TuningConfig) GetAngularVelocityConsistencyVarianceThreshold() float64 {
	if c.AngularVelocityConsistencyVarThr == nil {
		return 0.1
	}
	return *c.AngularVelocityConsistencyVarThr
}

// GetLinearVelocityConsistencyVarianceThreshold returns the linear consistency threshold or the default.
func (c *TuningConfig) GetLinearVelocityConsistencyVarianceThreshold() float64 {
	if c.LinearVelocityConsistencyVarThr == nil {
		return 1.0
	}
	return *c.LinearVelocityConsistencyVarThr
}

// GetSimultaneousTracking returns the simultaneous_tracking value or the default.
func (c *TuningConfig) GetSimultaneousTracking() bool {
	if c.SimultaneousTracking == nil {
		return true
	}
	return *c.SimultaneousTracking
}

// GetDetectionTimeout parses and returns the DetectionTimeout as a time.Duration.
func (c *TuningConfig) GetDetectionTimeout() time.Duration {
	if c.DetectionTimeout == nil || *c.DetectionTimeout == "" {
		return 200 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.DetectionTimeout)
	if err != nil {
		return 200 * time.Millisecond
	}
	return d
}

// GetHistoryKeyframeSearchRadius returns the history_keyframe_search_radius value or the default.
func (c *TuningConfig) GetHistoryKeyframeSearchRadius() float64 {
	if c.HistoryKeyframeSearchRadius == nil {
		return 15.0
	}
	return *c.HistoryKeyframeSearchRadius
}

// GetHistoryKeyframeSearchNum returns the history_keyframe_search_num value or the default.
func (c *TuningConfig) GetHistoryKeyframeSearchNum() int {
	if c.HistoryKeyframeSearchNum == nil {
		return 25
	}
	return *c.HistoryKeyframeSearchNum
}

// GetHistoryKeyframeSearchTimeDiff returns the history_keyframe_search_time_diff value or the default.
func (c *TuningConfig) GetHistoryKeyframeSearchTimeDiff() float64 {
	if c.HistoryKeyframeSearchTimeDiff == nil {
		return 30.0
	}
	return *c.HistoryKeyframeSearchTimeDiff
}

// GetHistoryKeyframeFitnessScore returns the history_keyframe_fitness_score value or the default.
func (c *TuningConfig) GetHistoryKeyframeFitnessScore() float64 {
	if c.HistoryKeyframeFitnessScore == nil {
		return 0.3
	}
	return *c.HistoryKeyframeFitnessScore
}

// GetLoopClosureFrequency returns the loop_closure_frequency value or the default.
func (c *TuningConfig) GetLoopClosureFrequency() float64 {
	if c.LoopClosureFrequency == nil {
		return 1.0
	}
	return *c.LoopClosureFrequency
}

// GetLoopClosureEnabled returns the loop_closure_enabled value or the default.
func (c *TuningConfig) GetLoopClosureEnabled() bool {
	if c.LoopClosureEnabled == nil {
		return true
	}
	return *c.LoopClosureEnabled
}

// GetPoseCovThreshold returns the pose_cov_threshold value or the default.
func (c *TuningConfig) GetPoseCovThreshold() float64 {
	if c.PoseCovThreshold == nil {
		return 25.0
	}
	return *c.PoseCovThreshold
}

// GetGPSCovThreshold returns the gps_cov_threshold value or the default.
func (c *TuningConfig) GetGPSCovThreshold() float64 {
	if c.GPSCovThreshold == nil {
		return 2.0
	}
	return *c.GPSCovThreshold
}

// GetUseGPSElevation returns the use_gps_elevation value or the default.
func (c *TuningConfig) GetUseGPSElevation() bool {
	if c.UseGPSElevation == nil {
		return false
	}
	return *c.UseGPSElevation
}

// GetGlobalMapInterval parses and returns the GlobalMapInterval as a time.Duration.
func (c *TuningConfig) GetGlobalMapInterval() time.Duration {
	if c.GlobalMapInterval == nil || *c.GlobalMapInterval == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.GlobalMapInterval)
	if err != nil {
		return 5 * time.Second
	}
	return d
}
