package a3c

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/unixpickle/anyvec"
)

// A Logger logs status messages which are produced during
// A3C training.
type Logger interface {
	LogEpisode(workerID int, reward float64)
	LogUpdate(workerID int, criticMSE anyvec.Numeric)
	LogRegularize(workerID int, term anyvec.Numeric)
}

// StandardLogger is a Logger which writes structured
// events to a zerolog.Logger.
//
// A Field of name <N> controls whether or not the Log<N>
// method does anything.
type StandardLogger struct {
	Log zerolog.Logger

	Episode    bool
	Update     bool
	Regularize bool
}

// LogEpisode logs the result of an episode.
func (s *StandardLogger) LogEpisode(workerID int, reward float64) {
	if s.Episode {
		s.Log.Info().Int("worker", workerID).Float64("reward", reward).Msg("episode")
	}
}

// LogUpdate logs the fact that a step was taken.
func (s *StandardLogger) LogUpdate(workerID int, criticMSE anyvec.Numeric) {
	if s.Update {
		s.Log.Info().Int("worker", workerID).Interface("critic_mse", criticMSE).
			Msg("update")
	}
}

// LogRegularize logs the regularization term for an
// action distribution.
func (s *StandardLogger) LogRegularize(workerID int, term anyvec.Numeric) {
	if s.Regularize {
		s.Log.Debug().Int("worker", workerID).Interface("term", term).
			Msg("regularize")
	}
}

// AvgLogger forwards running averages of log values to
// another Logger, reducing the volume of log messages in
// fast training setups.
//
// Every integer field <N> is the window size for the log
// routine called Log<N>.
// A window size of 0 or 1 forwards every message as-is.
type AvgLogger struct {
	Logger Logger

	// Creator converts between anyvec.Numerics and
	// native floats.
	Creator anyvec.Creator

	Episode    int
	Update     int
	Regularize int

	episodeAvg    averager
	updateAvg     averager
	regularizeAvg averager
}

// LogEpisode logs the mean reward over a window of
// episodes.
func (a *AvgLogger) LogEpisode(workerID int, reward float64) {
	if avg, ok := a.episodeAvg.Add(a.Episode, reward); ok {
		a.Logger.LogEpisode(workerID, avg)
	}
}

// LogUpdate logs the mean critic error over a window of
// updates.
func (a *AvgLogger) LogUpdate(workerID int, criticMSE anyvec.Numeric) {
	if avg, ok := a.updateAvg.Add(a.Update, a.Creator.Float64(criticMSE)); ok {
		a.Logger.LogUpdate(workerID, a.Creator.MakeNumeric(avg))
	}
}

// LogRegularize logs the mean regularization term over a
// window of timesteps.
func (a *AvgLogger) LogRegularize(workerID int, term anyvec.Numeric) {
	if avg, ok := a.regularizeAvg.Add(a.Regularize, a.Creator.Float64(term)); ok {
		a.Logger.LogRegularize(workerID, a.Creator.MakeNumeric(avg))
	}
}

type averager struct {
	lock  sync.Mutex
	count int
	sum   float64
}

// Add accumulates x and reports the average once window
// values have been seen.
func (a *averager) Add(window int, x float64) (float64, bool) {
	if window <= 1 {
		return x, true
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	a.count++
	a.sum += x
	if a.count < window {
		return 0, false
	}
	avg := a.sum / float64(a.count)
	a.count = 0
	a.sum = 0
	return avg, true
}
