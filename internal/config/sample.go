package config

// SampleConfig returns a fully commented configuration file
func SampleConfig() string {
	return `# Contractis configuration
version: "1.0"

server:
  # Root URL of the contract analysis backend
  base_url: "http://localhost:8080"
  # Optional deadline for history, stats and health requests (0: none).
  # Estimates are never cut short by the client.
  request_timeout: 0s
  # Deadline for /upload when the LLM type is "online". Local analysis never times out.
  online_analysis_timeout: 60s
  user_agent: "contractis-cli"

storage:
  # Where the LLM settings are persisted: file or sqlite
  backend: file
  dir: "~/.config/contractis"
  sqlite_path: "~/.config/contractis/state.db"

history:
  # Number of contracts fetched for the list and search views
  limit: 50
  search_debounce: 500ms
  resize_debounce: 250ms
  # Terminal widths at or below this use the card layout instead of the table
  card_breakpoint: 768

ui:
  # default, high-contrast or minimal
  theme: default
  notice_duration: 3s
  word_wrap: 100

output:
  # text, json or markdown
  default_format: text
  # auto, always or never
  color_mode: auto
  verbose: false
  # Logs are written here while the interactive UI owns the terminal
  log_file: "~/.cache/contractis/contractis.log"
  timestamp_format: "2006-01-02 15:04"

export:
  # dir or s3
  target: dir
  dir: "./reports"
  s3:
    endpoint: ""
    access_key_id: ""
    secret_access_key: ""
    bucket: ""
    prefix: "reports/"
    region: "us-east-1"
    use_ssl: false

watch:
  # Run the analysis right after the estimate instead of stopping there
  auto_analyze: false
  # Accept the recommended max tokens before analyzing
  apply_recommended: false
  settle: 500ms
`
}

// MinimalSampleConfig returns a compact configuration with only essential settings
func MinimalSampleConfig() string {
	return `version: "1.0"

server:
  base_url: "http://localhost:8080"

storage:
  backend: file

output:
  default_format: text
`
}
