package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetEdgeFeatureMinValidNum() != 10 {
		t.Errorf("GetEdgeFeatureMinValidNum() = %d, want 10", cfg.GetEdgeFeatureMinValidNum())
	}
	if cfg.GetSurfFeatureMinValidNum() != 100 {
		t.Errorf("GetSurfFeatureMinValidNum() = %d, want 100", cfg.GetSurfFeatureMinValidNum())
	}
	if cfg.GetAddDistThreshold() != 1.0 {
		t.Errorf("GetAddDistThreshold() = %f, want 1.0", cfg.GetAddDistThreshold())
	}
	if cfg.GetAddAngleThreshold() != 0.2 {
		t.Errorf("GetAddAngleThreshold() = %f, want 0.2", cfg.GetAddAngleThreshold())
	}
	if cfg.GetNumberOfPreLooseCouplingSteps() != 10 {
		t.Errorf("GetNumberOfPreLooseCouplingSteps() = %d, want 10", cfg.GetNumberOfPreLooseCouplingSteps())
	}
	if cfg.GetDetectionTimeout() != 200*time.Millisecond {
		t.Errorf("GetDetectionTimeout() = %v, want 200ms", cfg.GetDetectionTimeout())
	}
	if !cfg.GetLoopClosureEnabled() {
		t.Error("GetLoopClosureEnabled() = false, want true")
	}
	if cfg.GetUseGPSElevation() {
		t.Error("GetUseGPSElevation() = true, want false")
	}

	prior := cfg.GetPriorOdometryVariance()
	if prior[3] != 1e8 {
		t.Errorf("prior variance translation x = %g, want 1e8", prior[3])
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "add_dist_threshold": 0.5,
  "number_of_pre_loose_coupling_steps": 4,
  "detection_match_threshold": 9.0,
  "odometry_variance": [1e-5, 1e-5, 1e-5, 1e-3, 1e-3, 1e-3],
  "detection_timeout": "50ms",
  "use_gps_elevation": true
}`
	require.NoError(t, os.WriteFile(configPath, []byte(testJSON), 0644))

	cfg, err := LoadTuningConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.GetAddDistThreshold())
	assert.Equal(t, 4, cfg.GetNumberOfPreLooseCouplingSteps())
	assert.Equal(t, 9.0, cfg.GetDetectionMatchThreshold())
	assert.Equal(t, 50*time.Millisecond, cfg.GetDetectionTimeout())
	assert.True(t, cfg.GetUseGPSElevation())

	odo := cfg.GetOdometryVariance()
	assert.Equal(t, 1e-5, odo[0])
	assert.Equal(t, 1e-3, odo[5])

	// Fields omitted from the JSON fall back to defaults.
	assert.Equal(t, 0.2, cfg.GetAddAngleThreshold())
	assert.Equal(t, 5, cfg.GetNumberOfInterLooseCouplingSteps())
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("tuning.yaml")
	if err == nil {
		t.Fatal("expected error for non-json extension")
	}
}

func TestValidateRejectsBadVectors(t *testing.T) {
	t.Run("wrong length", func(t *testing.T) {
		cfg := EmptyTuningConfig()
		cfg.OdometryVariance = []float64{1, 2, 3}
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive entry", func(t *testing.T) {
		cfg := EmptyTuningConfig()
		cfg.MotionVariance = []float64{1, 1, 1, 1, 1, 0}
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad duration", func(t *testing.T) {
		cfg := EmptyTuningConfig()
		cfg.DetectionTimeout = ptrString("soon")
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative distance threshold", func(t *testing.T) {
		cfg := EmptyTuningConfig()
		cfg.AddDistThreshold = ptrFloat64(-1)
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero loop frequency", func(t *testing.T) {
		cfg := EmptyTuningConfig()
		cfg.LoopClosureFrequency = ptrFloat64(0)
		assert.Error(t, cfg.Validate())
	})

	t.Run("valid overrides pass", func(t *testing.T) {
		cfg := EmptyTuningConfig()
		cfg.NumberOfPreLooseCouplingSteps = ptrInt(2)
		cfg.SimultaneousTracking = ptrBool(false)
		cfg.ConstantVelocityVariance = []float64{1, 1, 1, 1, 1, 1}
		assert.NoError(t, cfg.Validate())
	})
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetNumberOfVelocityConsistencySteps() < 1 {
		t.Fatalf("defaults file has invalid consistency steps: %d", cfg.GetNumberOfVelocityConsistencySteps())
	}
	if cfg.GetDetectionMatchThreshold() <= 0 {
		t.Fatalf("defaults file has invalid match threshold: %f", cfg.GetDetectionMatchThreshold())
	}
}
