package models

// ModelLevel selects the cheaper or the stronger configured model.
type ModelLevel string

const (
	LevelLow  ModelLevel = "low"
	LevelHigh ModelLevel = "high"
)

// PromptInvocation is a resolved template plus the variables to fill it with.
type PromptInvocation struct {
	TemplateName string
	Template     string
	Variables    map[string]string
	OutputSchema map[string]interface{}
	Level        ModelLevel
}
