package server

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// HealthCheck is the result of probing one dependency.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Latency int64  `json:"latency_ms"`
}

// checkBinary runs "<name> -version" and reports the first output line.
func checkBinary(ctx context.Context, name string) HealthCheck {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, name, "-version").Output()
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthCheck{
			Status:  "error",
			Message: fmt.Sprintf("%s not available: %v", name, err),
			Latency: latency,
		}
	}
	versionLine := strings.SplitN(string(output), "\n", 2)[0]
	return HealthCheck{
		Status:  "ok",
		Message: versionLine,
		Latency: latency,
	}
}

// overallStatus is "ok" when every check passed and "degraded" otherwise.
// The index is already built, so a missing binary only affects new uploads.
func overallStatus(checks map[string]HealthCheck) string {
	for _, c := range checks {
		if c.Status != "ok" {
			return "degraded"
		}
	}
	return "ok"
}
