package models

type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	TotalItems int  `json:"total_items"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

type DetectionPage struct {
	Detections []DetectionRecord `json:"detections"`
	Pagination Pagination        `json:"pagination"`
}

// DetectionQuery filters the admin detection listing.
type DetectionQuery struct {
	Page    int
	PerPage int
	UserID  int64
	Search  string
}

type StatisticsOverview struct {
	TotalUsers         int `json:"total_users"`
	TotalDetections    int `json:"total_detections"`
	TotalAdmins        int `json:"total_admins"`
	RecentDetections7d int `json:"recent_detections_7d"`
	RecentUsers7d      int `json:"recent_users_7d"`
}

type ScoreDistribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

type TopUser struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	DetectionCount int    `json:"detection_count"`
}

// Statistics is the admin-wide aggregate view.
type Statistics struct {
	Overview           StatisticsOverview          `json:"overview"`
	AverageScores      *OceanScores                `json:"average_scores"`
	ScoreDistribution  map[Trait]ScoreDistribution `json:"score_distribution"`
	GenderDistribution map[string]int              `json:"gender_distribution"`
	AgeDistribution    map[string]int              `json:"age_distribution"`
	TopUsers           []TopUser                   `json:"top_users"`
}

type TimelinePoint struct {
	Date           string             `json:"date"`
	DetectionCount int                `json:"detection_count"`
	AverageScores  map[Trait]*float64 `json:"average_scores"`
}

type Timeline struct {
	Days     int             `json:"days"`
	Timeline []TimelinePoint `json:"timeline"`
}

// UserQuery filters the admin user listing.
type UserQuery struct {
	Page    int
	PerPage int
	Search  string
}

// AdminUser is a user as listed for administrators.
type AdminUser struct {
	User
	DetectionCount int `json:"detection_count"`
}

type UserPage struct {
	Users      []AdminUser `json:"users"`
	Pagination Pagination  `json:"pagination"`
}

// UserDetail is one user with all of their detections.
type UserDetail struct {
	AdminUser
	Detections    []DetectionRecord `json:"detections"`
	AverageScores *OceanScores      `json:"average_scores,omitempty"`
}

// ValidRole reports whether r can be assigned through the admin API.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleUser
}

// AdminDetection is a detection with its insights, as seen by an administrator.
type AdminDetection struct {
	DetectionRecord
	Insights *InsightBundle `json:"insights,omitempty"`
}
