package api

import "finnews-relay/internal/pipeline"

// Version is reported by GET /.
const Version = "2.0"

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// DateResponse keeps the field names existing API clients read.
type DateResponse struct {
	Date     string                   `json:"fecha"`
	Articles []pipeline.SummaryResult `json:"articulos"`
}

type RunResponse struct {
	Status    string                   `json:"status"`
	Processed int                      `json:"articulos_procesados"`
	Results   []pipeline.SummaryResult `json:"results"`
}
