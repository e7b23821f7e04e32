package dto

// RegisterRequest is the JSON body of POST /register.
type RegisterRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// DetectPictureResponse answers POST /yolo/detect_picture.
type DetectPictureResponse struct {
	Message         string   `json:"message"`
	RunID           string   `json:"run_id"`
	OutputImages    []string `json:"output_images"`
	OutputURLs      []string `json:"output_urls"`
	DetectedObjects int      `json:"detected_objects"`
	ProcessingTime  float64  `json:"processing_time"`
	RecordID        int64    `json:"record_id"`
}

// DetectVideoResponse answers POST /yolo/detect_video.
type DetectVideoResponse struct {
	Message         string  `json:"message"`
	RunID           string  `json:"run_id"`
	OutputVideo     string  `json:"output_video"`
	OutputURL       string  `json:"output_url"`
	DetectedObjects int     `json:"detected_objects"`
	FramesProcessed int     `json:"frames_processed"`
	ProcessingTime  float64 `json:"processing_time"`
	RecordID        int64   `json:"record_id"`
}

type ModelsResponse struct {
	Models       []string `json:"models"`
	CurrentModel string   `json:"current_model"`
	Device       string   `json:"device"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Device string `json:"device"`
}
