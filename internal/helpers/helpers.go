package helpers

import "poscore/internal/constants"

// IsValidStage reports whether stage is one of the defined deployment stages.
func IsValidStage(stage string) bool {
	switch stage {
	case constants.StageProd, constants.StageDev, constants.StageLocal:
		return true
	default:
		return false
	}
}
