package comm

import (
	"time"
)

var (
	progressActive bool
	progressLabel  string
	lastDrawn      time.Time
	lastAlpha      float64
)

// StartProgress begins a progress-reporting session.
func StartProgress() {
	if settings.noProgress || settings.quiet {
		return
	}
	progressActive = true
	lastDrawn = time.Time{}
}

// Progress reports completion in the [0,1] interval. Lines are
// throttled to one per second so long updates don't flood the log.
func Progress(alpha float64) {
	lastAlpha = alpha
	if settings.json {
		send("progress", jsonMessage{
			"progress": alpha,
			"label":    progressLabel,
		})
		return
	}
	if !progressActive {
		return
	}
	if time.Since(lastDrawn) < time.Second {
		return
	}
	lastDrawn = time.Now()
	if progressLabel != "" {
		Logf("%6.2f%% %s", alpha*100, progressLabel)
	} else {
		Logf("%6.2f%%", alpha*100)
	}
}

// ProgressLabel sets the label shown next to the percentage.
func ProgressLabel(label string) {
	progressLabel = label
}

// PauseProgress stops drawing until ResumeProgress.
func PauseProgress() {
	progressActive = false
}

// ResumeProgress resumes drawing after PauseProgress.
func ResumeProgress() {
	if settings.noProgress || settings.quiet {
		return
	}
	progressActive = true
}

// EndProgress closes the session, printing the final 100% line.
func EndProgress() {
	if progressActive && lastAlpha > 0 {
		lastDrawn = time.Time{}
		Progress(1.0)
	}
	progressActive = false
	progressLabel = ""
	lastAlpha = 0
}
