package config

import "time"

// SongConfig controls the generation flow: what a song costs in credits, how
// long we wait for the render service, and the signup bonus credited to new
// accounts.
type SongConfig struct {
	CreditCost     int64
	RenderTimeout  time.Duration
	SignupBonus    int64
	StatusPageURL  string
	RenderBaseURL  string
	RenderAPIKey   string
}

func LoadSongConfig() *SongConfig {
	return &SongConfig{
		CreditCost:    getEnvAsInt64("SONG_CREDIT_COST", 10),
		RenderTimeout: getEnvAsDuration("SONG_RENDER_TIMEOUT", 90*time.Second),
		SignupBonus:   getEnvAsInt64("SIGNUP_BONUS_CREDITS", 30),
		StatusPageURL: getEnv("PAYMENT_STATUS_PAGE_URL", "http://localhost:3000/purchase/status"),
		RenderBaseURL: getEnv("SONG_RENDER_BASE_URL", "https://api.songrender.example.com"),
		RenderAPIKey:  getEnv("SONG_RENDER_API_KEY", ""),
	}
}
