package dto

import "github.com/your-org/oceanlens/internal/models"

// DetectionResponse is a detection as the analysis backend serialises it.
type DetectionResponse struct {
	ID        int64              `json:"id"`
	Name      string             `json:"name"`
	Age       *int               `json:"age"`
	Gender    *string            `json:"gender"`
	ImagePath *string            `json:"image_path"`
	CreatedAt string             `json:"created_at"`
	UserID    *int64             `json:"user_id"`
	Results   models.OceanScores `json:"results"`
	User      *UserSummary       `json:"user,omitempty"`
}

type UserSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type DetectionListResponse struct {
	Detections []DetectionResponse `json:"detections"`
	Pagination models.Pagination   `json:"pagination"`
}

// InsightsResponse is the body of GET /history/{id}/insights.
type InsightsResponse struct {
	DetectionID int64                 `json:"detection_id"`
	Scores      models.OceanScores    `json:"scores"`
	Insights    *models.InsightBundle `json:"insights"`
}

type UserListResponse struct {
	Users      []models.AdminUser `json:"users"`
	Pagination models.Pagination  `json:"pagination"`
}

// UserDetailResponse is the body of GET /admin/users/{id}.
type UserDetailResponse struct {
	models.AdminUser
	Detections    []DetectionResponse `json:"detections"`
	AverageScores *models.OceanScores `json:"average_scores,omitempty"`
}

// AdminDetectionResponse is the body of GET /admin/detections/{id}.
type AdminDetectionResponse struct {
	DetectionResponse
	Insights *models.InsightBundle `json:"insights,omitempty"`
}

type RoleUpdateRequest struct {
	Role models.Role `json:"role"`
}

type RoleUpdateResponse struct {
	Message string      `json:"message"`
	User    models.User `json:"user"`
}

type AdminCheckResponse struct {
	IsAdmin bool        `json:"is_admin"`
	Role    string      `json:"role"`
	User    UserSummary `json:"user"`
}
