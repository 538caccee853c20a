package httpserver

import (
	"time"

	"github.com/helixir/pubmed-harvester/internal/harvest"
)

// Harvest response types for JSON serialization.

type startHarvestResponse struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message"`
}

type harvestStatusResponse struct {
	RunID        string           `json:"run_id"`
	Status       string           `json:"status"`
	Progress     progressResponse `json:"progress"`
	FailedIDs    []string         `json:"failed_ids"`
	LastMessage  string           `json:"last_message,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	Duration     string           `json:"duration,omitempty"`
	Params       paramsResponse   `json:"parameters"`
}

type progressResponse struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Fetched   int `json:"fetched"`
	Failed    int `json:"failed"`
	Percent   int `json:"percent"`
}

type paramsResponse struct {
	Query       string `json:"query"`
	StartYear   string `json:"start_year,omitempty"`
	EndYear     string `json:"end_year,omitempty"`
	MaxParallel int    `json:"max_parallel"`
}

type harvestSummaryResponse struct {
	RunID       string     `json:"run_id"`
	Query       string     `json:"query"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Fetched     int        `json:"fetched"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type listHarvestsResponse struct {
	Harvests   []harvestSummaryResponse `json:"harvests"`
	TotalCount int                      `json:"total_count"`
}

type exportFormatResponse struct {
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	ContentType string `json:"content_type"`
}

// Converter functions

func runViewToStatusResponse(v runView) harvestStatusResponse {
	resp := harvestStatusResponse{
		RunID:  v.ID.String(),
		Status: string(v.Status),
		Progress: progressResponse{
			Total:     v.Total,
			Processed: v.Processed,
			Fetched:   v.Fetched,
			Failed:    len(v.FailedIDs),
			Percent:   v.percent(),
		},
		FailedIDs:    v.FailedIDs,
		LastMessage:  v.LastMessage,
		ErrorMessage: v.Error,
		CreatedAt:    v.CreatedAt,
		StartedAt:    v.StartedAt,
		CompletedAt:  v.CompletedAt,
		Params:       paramsToResponse(v.Params),
	}
	if resp.FailedIDs == nil {
		resp.FailedIDs = []string{}
	}
	if v.Elapsed > 0 {
		resp.Duration = harvest.FormatElapsed(v.Elapsed)
	}
	return resp
}

func paramsToResponse(p harvest.Params) paramsResponse {
	return paramsResponse{
		Query:       p.Query,
		StartYear:   p.StartYear,
		EndYear:     p.EndYear,
		MaxParallel: p.MaxParallel,
	}
}

func runViewToSummary(v runView) harvestSummaryResponse {
	return harvestSummaryResponse{
		RunID:       v.ID.String(),
		Query:       v.Params.Query,
		Status:      string(v.Status),
		Total:       v.Total,
		Fetched:     v.Fetched,
		CreatedAt:   v.CreatedAt,
		CompletedAt: v.CompletedAt,
	}
}
