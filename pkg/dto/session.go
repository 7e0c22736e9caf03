package dto

import "github.com/your-org/oceanlens/internal/models"

// SubmitRequest carries the subject form from the rendering layer.
type SubmitRequest struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

type AssetResponse struct {
	Name       string `json:"name"`
	MediaType  string `json:"media_type"`
	Size       int64  `json:"size"`
	PreviewURL string `json:"preview_url,omitempty"`
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
}

type DetectionView struct {
	ID        int64                   `json:"id"`
	Subject   models.SubjectMetadata  `json:"subject"`
	Results   models.OceanScores      `json:"results"`
	Levels    map[models.Trait]string `json:"levels"`
	CreatedAt string                  `json:"created_at"`
	OwnerID   int64                   `json:"owner_id"`
}

// SessionResponse is the projection of the current detection session.
type SessionResponse struct {
	ID             string                  `json:"id,omitempty"`
	Version        uint64                  `json:"version"`
	Phase          string                  `json:"phase"`
	InFlight       bool                    `json:"in_flight"`
	Asset          *AssetResponse          `json:"asset,omitempty"`
	Metadata       *models.SubjectMetadata `json:"metadata,omitempty"`
	MetadataErrors map[string]string       `json:"metadata_errors,omitempty"`
	Result         *DetectionView          `json:"result,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

type PlaybackResponse struct {
	Attached bool `json:"attached"`
	Playing  bool `json:"playing"`
	Muted    bool `json:"muted"`
}

type InsightsView struct {
	DetectionID int64                 `json:"detection_id"`
	Status      string                `json:"status"`
	Insights    *models.InsightBundle `json:"insights,omitempty"`
	Error       string                `json:"error,omitempty"`
}

type HistoryResponse struct {
	Detections []DetectionView `json:"detections"`
	Total      int             `json:"total"`
	FetchedAt  string          `json:"fetched_at"`
}
