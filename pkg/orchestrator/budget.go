package orchestrator

import (
	"time"

	"github.com/psantana5/dreamina/pkg/models"
	"github.com/psantana5/dreamina/pkg/poller"
)

var (
	imageBudget      = poller.Budget{MaxAttempts: 60, Interval: 3 * time.Second}
	videoBudget      = poller.Budget{MaxAttempts: 120, Interval: 10 * time.Second}
	multiFrameBudget = poller.Budget{MaxAttempts: 180, Interval: 10 * time.Second}

	// QueryBudget is used when following a handle whose kind is unknown.
	QueryBudget = poller.Budget{MaxAttempts: 60, Interval: 5 * time.Second}
)

// DefaultBudget returns the polling budget suited to kind.
func DefaultBudget(kind models.Kind) poller.Budget {
	switch kind {
	case models.KindTextToImage, models.KindImageEdit:
		return imageBudget
	case models.KindImageToVideo, models.KindStartEndToVideo:
		return videoBudget
	case models.KindMultiFrameToVideo:
		return multiFrameBudget
	default:
		return QueryBudget
	}
}
