package health

import (
	"fmt"
	"net/http"
	"time"
)

type HealthStatus struct {
	GatewayReachable bool     `json:"gateway_reachable"`
	Healthy          bool     `json:"healthy"`
	Issues           []string `json:"issues,omitempty"`
}

// Check probes the gateway's health endpoint and reports reachability.
func Check(gatewayURL string) *HealthStatus {
	status := &HealthStatus{
		Healthy: true,
		Issues:  []string{},
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(gatewayURL + "/health")
	if err != nil {
		status.GatewayReachable = false
		status.Healthy = false
		status.Issues = append(status.Issues, fmt.Sprintf("cannot reach gateway: %v", err))
		return status
	}
	resp.Body.Close()

	status.GatewayReachable = resp.StatusCode == http.StatusOK
	if !status.GatewayReachable {
		status.Healthy = false
		status.Issues = append(status.Issues, fmt.Sprintf("gateway unhealthy: %d", resp.StatusCode))
	}
	return status
}
