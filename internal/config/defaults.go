package config

// GetDefaultConfig returns the built-in configuration that user and project
// layers are merged over.
func GetDefaultConfig() GatewayConfig {
	return GatewayConfig{
		GlobalSettings: GlobalSettings{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Transport: TransportStdio,
			Host:      "localhost",
			Port:      8090,
		},
		Telemetry: TelemetryConfig{
			JournalPath: ".govgate/events.jsonl",
			StorePath:   ".govgate/telemetry.db",
		},
		// No groups beyond core by default; agents enable more on demand
		// and operators can pre-enable via configuration.
	}
}
