package domain

import "time"

type (
	DependencyCheckStatus string

	HealthResponseStatus string
)

const (
	DependencyCheckStatusHealthy   DependencyCheckStatus = "healthy"
	DependencyCheckStatusDisabled  DependencyCheckStatus = "disabled"
	DependencyCheckStatusUnhealthy DependencyCheckStatus = "unhealthy"
)

const (
	HealthResponseStatusHealthy   HealthResponseStatus = "healthy"
	HealthResponseStatusDegraded  HealthResponseStatus = "degraded"
	HealthResponseStatusUnhealthy HealthResponseStatus = "unhealthy"
)

type (
	// DependencyStatus represents the health status of a dependency
	DependencyStatus struct {
		Status       DependencyCheckStatus `json:"status"`
		ResponseTime float32               `json:"response_time_ms"`
		LastChecked  time.Time             `json:"last_checked"`
		Error        string                `json:"error,omitempty"`
	}

	// HealthResult contains comprehensive health check results
	HealthResult struct {
		OverallStatus HealthResponseStatus `json:"status"`
		Queue         DependencyStatus     `json:"queue"`
		Storage       DependencyStatus     `json:"storage"`
		Uptime        float32              `json:"uptime_seconds"`
	}
)
