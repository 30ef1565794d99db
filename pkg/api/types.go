package api

// v0 contains public types consumed by external monitoring.

// Outcome is the result classification of a single check.
type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeWarn Outcome = "WARN"
	OutcomeFail Outcome = "FAIL"
)

// Verdict is the aggregate classification of a whole run.
type Verdict string

const (
	VerdictHealthy             Verdict = "HEALTHY"
	VerdictHealthyWithWarnings Verdict = "HEALTHY_WITH_WARNINGS"
	VerdictUnhealthy           Verdict = "UNHEALTHY"
	VerdictSecure              Verdict = "SECURE"
	VerdictSecureWithWarnings  Verdict = "SECURE_WITH_WARNINGS"
	VerdictInsecure            Verdict = "INSECURE"
)

// CheckStatus is one check's entry in a status document.
type CheckStatus struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Outcome    Outcome `json:"outcome"`
	DurationMS int64   `json:"duration_ms"`
	Detail     string  `json:"detail,omitempty"`
}

// SystemInfo carries host/runtime facts gathered during validation.
type SystemInfo struct {
	DockerVersion  string `json:"docker_version,omitempty"`
	ComposeVersion string `json:"compose_version,omitempty"`
	MemoryMB       int    `json:"memory_mb"`
	CPUCores       int    `json:"cpu_cores"`
	DiskFreeGB     int    `json:"disk_free_gb"`
}

// ConfigInfo summarizes the deployed configuration surface.
type ConfigInfo struct {
	SecretCount     int  `json:"secret_count"`
	SSLConfigured   bool `json:"ssl_configured"`
	SecurityProfile bool `json:"security_profile_present"`
}

// StatusDocument is the JSON report written after every run. The shape is
// shared by validation, health and backup runs so monitoring consumes a
// single schema regardless of entry point.
type StatusDocument struct {
	RunID     string          `json:"run_id"`
	Timestamp string          `json:"timestamp"`
	Kind      string          `json:"kind"`
	Verdict   Verdict         `json:"verdict"`
	Passed    int             `json:"passed"`
	Failed    int             `json:"failed"`
	Warned    int             `json:"warned"`
	Score     int             `json:"score"`
	Version   string          `json:"version,omitempty"`
	Services  map[string]bool `json:"services,omitempty"`
	Checks    []CheckStatus   `json:"checks"`
	System    *SystemInfo     `json:"system,omitempty"`
	Config    *ConfigInfo     `json:"config,omitempty"`
}
