package meter

import "github.com/ineyio/creditgate"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ creditgate.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnStage(creditgate.StageEvent)   {}
func (m *NoopMeter) OnResult(creditgate.ResultEvent) {}
