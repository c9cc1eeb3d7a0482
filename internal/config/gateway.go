package config

import "time"

// GatewayConfig holds the wallet payment gateway endpoint and credentials.
// WebhookSecret signs inbound notifications; it is never logged.
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	ReturnURL     string
	Currency      string
	Timeout       time.Duration
}

func LoadGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		BaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.wallet-pay.example.com"),
		APIKey:        getEnv("GATEWAY_API_KEY", ""),
		WebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		ReturnURL:     getEnv("GATEWAY_RETURN_URL", "http://localhost:8080/api/v1/payments/return"),
		Currency:      getEnv("GATEWAY_CURRENCY", "NOK"),
		Timeout:       getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),
	}
}
