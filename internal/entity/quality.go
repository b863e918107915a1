package entity

// Resolution holds source raster dimensions in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// QualityAssessment holds per-image quality signals, each in [0,1].
// Computed once per source image before variant generation.
type QualityAssessment struct {
	BlurScore      float64    `json:"blur_score"`
	GlareScore     float64    `json:"glare_score"`
	SkewScore      float64    `json:"skew_score"`
	Brightness     float64    `json:"brightness"`
	Contrast       float64    `json:"contrast"`
	Resolution     Resolution `json:"resolution"`
	DocDetected    bool       `json:"doc_detected"`
	OverallQuality float64    `json:"overall_quality"`
}
