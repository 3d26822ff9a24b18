package creditgate

import (
	"time"

	"github.com/shopspring/decimal"
)

// Meter observes request lifecycle events for monitoring/logging.
type Meter interface {
	// OnStage is called on every state transition of a request.
	OnStage(event StageEvent)

	// OnResult is called once per request with its final outcome.
	OnResult(event ResultEvent)
}

// RequestKind distinguishes the two request types.
type RequestKind string

const (
	RequestChat RequestKind = "chat"
	RequestRAG  RequestKind = "rag"
)

// Stage is a request lifecycle state.
type Stage string

const (
	StageAdmitted   Stage = "admitted"
	StageRetrieving Stage = "retrieving"
	StageDispatched Stage = "dispatched"
	StageSucceeded  Stage = "succeeded"
	StageRefunded   Stage = "refunded"
)

// StageEvent describes one state transition.
type StageEvent struct {
	AccountID     string
	Kind          RequestKind
	Model         string
	Stage         Stage
	ReservationID string
	Elapsed       time.Duration
}

// ResultEvent describes the outcome of a request.
type ResultEvent struct {
	AccountID string
	Kind      RequestKind
	Model     string
	Success   bool
	Charged   decimal.Decimal
	Duration  time.Duration
	Usage     Usage
	Error     error
}

type noopMeter struct{}

func (noopMeter) OnStage(StageEvent)   {}
func (noopMeter) OnResult(ResultEvent) {}
