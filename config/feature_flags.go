package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles for the attendance ledger.
// Supports gradual rollout keyed on subject identity, so new behavior
// can be tried on a slice of the catalog before going wide.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	subjectOverrides map[string]map[string]bool // subjectID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Subjects are assigned based on hash of their ID
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	SubjectID string
	IsAdmin   bool
}

// Predefined feature flag names.
const (
	// === Summary Features ===
	FeatureSummaryCache = "summary.cache" // Redis-backed summary reads
	FeatureSummaryBands = "summary.bands" // good/warning/critical labels

	// === Notification Features ===
	FeatureNotifyReminders   = "notify.reminders"    // pre-class reminders
	FeatureNotifyDailyDigest = "notify.daily_digest" // morning class digest
	FeatureNotifyAlerts      = "notify.alerts"       // threshold-crossing alerts
	FeatureNotifyWebhook     = "notify.webhook"      // webhook delivery channel

	// === Background Jobs ===
	FeatureJobRebuild = "jobs.rebuild_aggregates" // nightly counter rescan
	FeatureJobDigest  = "jobs.reminder_digest"    // scheduled digest job

	// === Experimental Features ===
	FeatureExperimentalAuditExport = "experimental.audit_export" // audit CSV export
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		subjectOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureSummaryCache] = &Feature{
		Name:           FeatureSummaryCache,
		Description:    "Serve summaries from the Redis cache",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureSummaryBands] = &Feature{
		Name:           FeatureSummaryBands,
		Description:    "Label summaries with requirement bands",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyReminders] = &Feature{
		Name:           FeatureNotifyReminders,
		Description:    "Send pre-class reminders",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyDailyDigest] = &Feature{
		Name:           FeatureNotifyDailyDigest,
		Description:    "Send the morning class digest",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyAlerts] = &Feature{
		Name:           FeatureNotifyAlerts,
		Description:    "Alert when attendance crosses the requirement",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyWebhook] = &Feature{
		Name:           FeatureNotifyWebhook,
		Description:    "Deliver notifications over the webhook channel",
		Enabled:        false, // opt-in, needs WEBHOOK_URL
		RolloutPercent: 0,
	}

	ff.features[FeatureJobRebuild] = &Feature{
		Name:           FeatureJobRebuild,
		Description:    "Nightly aggregate rescan and repair",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureJobDigest] = &Feature{
		Name:           FeatureJobDigest,
		Description:    "Scheduled reminder digest job",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureExperimentalAuditExport] = &Feature{
		Name:           FeatureExperimentalAuditExport,
		Description:    "Audit trail CSV export",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_NOTIFY_WEBHOOK=true
// Example: FEATURE_SUMMARY_CACHE=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "notify.daily_digest" -> "FEATURE_NOTIFY_DAILY_DIGEST"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check subject overrides first
	if ctx != nil && ctx.SubjectID != "" {
		if overrides, ok := ff.subjectOverrides[ctx.SubjectID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admin contexts get all features
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.SubjectID != "" {
		return ff.isInRollout(ctx.SubjectID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a subject is in the rollout percentage.
// Uses consistent hashing so subjects stay in their bucket.
func (ff *FeatureFlags) isInRollout(subjectID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(subjectID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// SetSubjectOverride sets a feature override for a specific subject.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetSubjectOverride(subjectID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.subjectOverrides[subjectID]; !ok {
		ff.subjectOverrides[subjectID] = make(map[string]bool)
	}
	ff.subjectOverrides[subjectID][featureName] = enabled
}

// ClearSubjectOverrides removes all overrides for a subject.
func (ff *FeatureFlags) ClearSubjectOverrides(subjectID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.subjectOverrides, subjectID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// NotificationsEnabled checks if any notification features are enabled.
func (ff *FeatureFlags) NotificationsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureNotifyReminders, ctx) ||
		ff.IsEnabled(FeatureNotifyAlerts, ctx) ||
		ff.IsEnabled(FeatureNotifyDailyDigest, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
