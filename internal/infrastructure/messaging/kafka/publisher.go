package kafka

import (
	"context"

	"github.com/turtacn/lsoma/internal/application/expansion"
)

// IterationPayload is the wire form of one iteration log record.
type IterationPayload struct {
	Iteration      int     `json:"iteration"`
	Params         string  `json:"params"`
	Percentile     float64 `json:"percentile"`
	Share          float64 `json:"share"`
	IncomePenalty  float64 `json:"income_penalty"`
	MinBeds        float64 `json:"min_beds"`
	Sites          int     `json:"sites"`
	ViableClusters int     `json:"viable_clusters"`
	TotalBeds      float64 `json:"total_beds"`
	Changed        string  `json:"changed"`
}

// MetricPayload is one prime against expanded comparison row.
type MetricPayload struct {
	Name     string  `json:"metric"`
	Prime    float64 `json:"prime"`
	Expanded float64 `json:"expanded"`
	Delta    float64 `json:"delta"`
}

// OutcomePayload summarizes a finished run.
type OutcomePayload struct {
	Outcome     string          `json:"outcome"`
	BestEffort  bool            `json:"best_effort"`
	Target      int             `json:"target"`
	Iterations  int             `json:"iterations"`
	PrimeSites  int             `json:"prime_sites"`
	FinalSites  int             `json:"final_sites"`
	Deficit     int             `json:"deficit"`
	FinalParams string          `json:"final_params"`
	Metrics     []MetricPayload `json:"metrics"`
}

// Publisher emits run events through a Producer.  It satisfies
// expansion.Publisher.
type Publisher struct {
	producer       *Producer
	iterationTopic string
	outcomeTopic   string
}

// NewPublisher publishes to the topics under the producer's prefix.
func NewPublisher(p *Producer) *Publisher {
	prefix := p.Config().TopicPrefix
	return &Publisher{
		producer:       p,
		iterationTopic: TopicName(prefix, TopicIteration),
		outcomeTopic:   TopicName(prefix, TopicOutcome),
	}
}

// PublishIteration sends one log record.
func (p *Publisher) PublishIteration(ctx context.Context, runID string, rec expansion.Record) error {
	return p.send(ctx, p.iterationTopic, EventIteration, runID, IterationPayload{
		Iteration:      rec.Iteration,
		Params:         rec.Params,
		Percentile:     rec.State.Percentile,
		Share:          rec.State.Share,
		IncomePenalty:  rec.State.IncomePenalty,
		MinBeds:        rec.State.MinBeds,
		Sites:          rec.Sites,
		ViableClusters: rec.ViableClusters,
		TotalBeds:      rec.TotalBeds,
		Changed:        rec.Changed,
	})
}

// PublishOutcome sends the run summary and comparison.
func (p *Publisher) PublishOutcome(ctx context.Context, runID string, res *expansion.Result) error {
	payload := OutcomePayload{
		Outcome:    string(res.Outcome),
		BestEffort: res.Outcome.BestEffort(),
		Target:     res.Target,
		Iterations: res.Iterations(),
	}
	if res.Prime != nil {
		payload.PrimeSites = res.Prime.Summary.Sites
	}
	if res.Final != nil {
		payload.FinalSites = res.Final.Summary.Sites
		payload.FinalParams = res.Final.State.String()
		payload.Deficit = res.Deficit()
	}
	if res.Prime != nil && res.Final != nil {
		for _, m := range expansion.Compare(res) {
			payload.Metrics = append(payload.Metrics, MetricPayload{
				Name: m.Name, Prime: m.Prime, Expanded: m.Expanded, Delta: m.Delta(),
			})
		}
	}
	return p.send(ctx, p.outcomeTopic, EventOutcome, runID, payload)
}

func (p *Publisher) send(ctx context.Context, topic, eventType, runID string, payload interface{}) error {
	env, err := NewEventEnvelope(eventType, runID, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}
