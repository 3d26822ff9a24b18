package meter

import (
	"log/slog"

	"github.com/ineyio/creditgate"
)

// LogMeter logs request lifecycle events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ creditgate.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnStage(e creditgate.StageEvent) {
	m.Logger.Debug("stage",
		"account", e.AccountID,
		"kind", e.Kind,
		"model", e.Model,
		"stage", e.Stage,
		"reservation", e.ReservationID,
		"elapsed_ms", e.Elapsed.Milliseconds(),
	)
}

func (m *LogMeter) OnResult(e creditgate.ResultEvent) {
	if e.Success {
		m.Logger.Info("result",
			"account", e.AccountID,
			"kind", e.Kind,
			"model", e.Model,
			"charged", e.Charged.String(),
			"duration_ms", e.Duration.Milliseconds(),
			"prompt_tokens", e.Usage.PromptTokens,
			"completion_tokens", e.Usage.CompletionTokens,
		)
	} else {
		m.Logger.Warn("result_error",
			"account", e.AccountID,
			"kind", e.Kind,
			"model", e.Model,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	}
}
