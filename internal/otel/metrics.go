package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the runtime's metric instruments.
type Metrics struct {
	BusDispatched    metric.Int64Counter
	BusDropped       metric.Int64Counter
	ToolCallDuration metric.Float64Histogram
	ToolCallErrors   metric.Int64Counter
	BreakerOpens     metric.Int64Counter
	PlanStepsTotal   metric.Int64Counter
	LLMFeedbackCalls metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.BusDispatched, err = meter.Int64Counter("araci.bus.dispatched",
		metric.WithDescription("Messages dispatched by the A2A bus"),
	)
	if err != nil {
		return nil, err
	}

	m.BusDropped, err = meter.Int64Counter("araci.bus.dropped",
		metric.WithDescription("Messages dropped (expired or unknown receiver)"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallDuration, err = meter.Float64Histogram("araci.tool.duration",
		metric.WithDescription("Tool execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("araci.tool.errors",
		metric.WithDescription("Tool execution error count"),
	)
	if err != nil {
		return nil, err
	}

	m.BreakerOpens, err = meter.Int64Counter("araci.tool.breaker_opens",
		metric.WithDescription("Circuit breaker open transitions"),
	)
	if err != nil {
		return nil, err
	}

	m.PlanStepsTotal, err = meter.Int64Counter("araci.coordinator.steps",
		metric.WithDescription("Plan steps executed by the coordinator"),
	)
	if err != nil {
		return nil, err
	}

	m.LLMFeedbackCalls, err = meter.Int64Counter("araci.coordinator.llm_feedback",
		metric.WithDescription("LLM feedback/re-plan calls issued"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
