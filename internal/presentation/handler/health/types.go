package health

// healthResponse represents the health status of the relay
type healthResponse struct {
	Status      string `json:"status"`    // ok or unhealthy
	Message     string `json:"message"`   // Human readable status
	Timestamp   string `json:"timestamp"` // Current server timestamp in RFC3339 format
	Uptime      string `json:"uptime"`    // Server uptime since start
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}
