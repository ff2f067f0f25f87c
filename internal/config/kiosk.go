package config

import "time"

// KioskConfig configures the terminal kiosk client.
type KioskConfig struct {
    ServerURL      string        // base URL of the seat service
    FlightID       string        // flight tracked at start-up (optional)
    ReconnectDelay time.Duration // fixed pause between reconnect attempts
    ReconnectBurst int           // attempts allowed back to back
    LogLevel       string
}

// LoadKioskConfig reads KIOSK_* variables.  Flags may override the result.
func LoadKioskConfig() KioskConfig {
    return KioskConfig{
        ServerURL:      envStr("KIOSK_SERVER_URL", "http://localhost:8080"),
        FlightID:       envStr("KIOSK_FLIGHT", ""),
        ReconnectDelay: envDur("KIOSK_RECONNECT_DELAY", 5*time.Second),
        ReconnectBurst: envInt("KIOSK_RECONNECT_BURST", 3),
        LogLevel:       envStr("LOG_LEVEL", "warn"),
    }
}
