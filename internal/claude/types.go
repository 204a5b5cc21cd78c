package claude

// CLIResponse is the JSON document printed by `claude -p --output-format json`.
type CLIResponse struct {
	Type          string   `json:"type"`
	Subtype       string   `json:"subtype"`
	IsError       bool     `json:"is_error"`
	DurationMs    int64    `json:"duration_ms"`
	DurationAPIMs int64    `json:"duration_api_ms"`
	NumTurns      int      `json:"num_turns"`
	Result        string   `json:"result"`
	SessionID     string   `json:"session_id"`
	TotalCostUSD  float64  `json:"total_cost_usd"`
	Usage         CLIUsage `json:"usage"`
}

// CLIUsage is the token accounting block of a CLIResponse.
type CLIUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}
