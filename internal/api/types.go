package api

import (
	"encoding/json"
	"io"
	"time"
)

// FileSource is an uploadable file
type FileSource interface {
	FileName() string
	Open() (io.ReadCloser, error)
}

// Estimation is the /estimate token breakdown
type Estimation struct {
	CharacterCount       int    `json:"characterCount"`
	EstimatedTokens      int    `json:"estimatedTokens"`
	Chunks               int    `json:"chunks"`
	SystemPromptTokens   int    `json:"systemPromptTokens"`
	Phase1Tokens         int    `json:"phase1Tokens"`
	Phase2InputTokens    int    `json:"phase2InputTokens"`
	Phase2OutputTokens   int    `json:"phase2OutputTokens"`
	TotalTokens          int    `json:"totalTokens"`
	RecommendedMaxTokens int    `json:"recommendedMaxTokens"`
	Warning              string `json:"warning,omitempty"`
}

// estimateResponse is flat: success and error sit next to the numbers
type estimateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Estimation
}

// Status is the server-side lifecycle of a contract
type Status string

const (
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Contract is a server-owned history record
type Contract struct {
	ID                    int64      `json:"id"`
	Filename              string     `json:"filename"`
	FileHash              string     `json:"file_hash,omitempty"`
	FileSize              int64      `json:"file_size,omitempty"`
	UploadedAt            time.Time  `json:"uploaded_at"`
	AnalyzedAt            *time.Time `json:"analyzed_at,omitempty"`
	Status                Status     `json:"status"`
	LLMType               string     `json:"llm_type"`
	LLMModel              string     `json:"llm_model"`
	MaxTokens             int        `json:"max_tokens,omitempty"`
	AnalysisResult        string     `json:"analysis_result,omitempty"`
	CharacterCount        int        `json:"character_count,omitempty"`
	EstimatedTokens       int        `json:"estimated_tokens,omitempty"`
	ChunksCount           int        `json:"chunks_count,omitempty"`
	ProcessingTimeSeconds float64    `json:"processing_time_seconds,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`
}

// Stats are the aggregate history counters. The backend uses Go field names as keys.
type Stats struct {
	TotalContracts        int        `json:"TotalContracts"`
	CompletedContracts    int        `json:"CompletedContracts"`
	FailedContracts       int        `json:"FailedContracts"`
	TotalProcessingTime   float64    `json:"TotalProcessingTime"`
	AverageProcessingTime float64    `json:"AverageProcessingTime"`
	LastAnalyzedAt        *time.Time `json:"LastAnalyzedAt,omitempty"`
}

// Health is the /health payload
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}
