package dto

// PostingSettingsResponse is the company's posting configuration.
type PostingSettingsResponse struct {
	AutoReduceStock bool `json:"autoReduceStock"`
}

// UpdatePostingSettingsRequest changes the company's posting configuration.
type UpdatePostingSettingsRequest struct {
	AutoReduceStock *bool `json:"autoReduceStock" binding:"required"`
}
