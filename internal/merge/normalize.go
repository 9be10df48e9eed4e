package merge

import (
	"time"

	"github.com/kingkw1/2Truths-1Lie-sub004/internal/mediaapi"
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// Normalize maps a raw backend status report onto the local merge stage and
// the continuous two-phase progress bar: uploads own [0,50), the merge owns
// [50,100].
//
// assumedMergeDuration feeds the estimate for the window where the backend
// has everything it needs but has not started merging, since no
// merge-specific progress exists yet at that point.
func Normalize(status *mediaapi.MergeStatusOutput, assumedMergeDuration time.Duration) mediatypes.MergeProgress {
	switch {
	case status.OverallStatus == mediaapi.OverallFailed || status.MergeStatus == mediaapi.MergeFailed:
		return mediatypes.MergeProgress{
			Stage: mediatypes.MergeFailed,
			Step:  "merge failed",
		}

	case status.OverallStatus == mediaapi.OverallCompleted || status.MergeStatus == mediaapi.MergeCompleted:
		return mediatypes.MergeProgress{
			Stage:   mediatypes.MergeCompleted,
			Percent: 100,
			Step:    "completed",
		}

	case status.MergeTriggered &&
		(status.MergeStatus == mediaapi.MergeInProgress || status.OverallStatus == mediaapi.OverallMerging):
		// Mid-merge: map the server's merge progress onto the upper half.
		mergePct := clampPercent(status.MergeProgressPercent)
		return mediatypes.MergeProgress{
			Stage:   mediatypes.MergeProcessing,
			Percent: 50 + mergePct/2,
			Step:    "merging",
			ETA:     remainingEstimate(assumedMergeDuration, mergePct),
		}

	case status.OverallStatus == mediaapi.OverallReadyForMerge && !status.MergeTriggered:
		// Everything uploaded, merge not yet started. Progress holds at the
		// phase boundary with a fixed-duration estimate.
		return mediatypes.MergeProgress{
			Stage:   mediatypes.MergeProcessing,
			Percent: 50,
			Step:    "waiting for merge",
			ETA:     assumedMergeDuration,
		}

	default:
		// Still uploading per server bookkeeping: scale per-file completion
		// counts into the lower half.
		var fraction float64
		if status.TotalVideos > 0 {
			fraction = float64(status.CompletedVideos) / float64(status.TotalVideos)
			if fraction > 1 {
				fraction = 1
			}
		}
		return mediatypes.MergeProgress{
			Stage:   mediatypes.MergePending,
			Percent: fraction * 50,
			Step:    "uploading",
		}
	}
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func remainingEstimate(assumed time.Duration, mergePct float64) time.Duration {
	if assumed <= 0 {
		return 0
	}
	return time.Duration(float64(assumed) * (100 - mergePct) / 100)
}
