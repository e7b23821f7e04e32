package model

// Stage is the lifecycle position of a pipeline run.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageDecoding  Stage = "decoding"
	StageInferring Stage = "inferring"
	StageRendering Stage = "rendering"
	StageWriting   Stage = "writing"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)
