// Package publish sends analysis summaries to Kafka.
package publish

import (
	"context"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/hotspot/internal/analysis"
)

const defaultTopFunctions = 10

type (
	// Writer is the subset of kafka.Writer used to publish messages.
	Writer interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	FunctionSummary struct {
		Name   string `json:"name"`
		Module string `json:"module"`
		Total  uint64 `json:"total"`
		Self   uint64 `json:"self"`
	}

	ModuleSummary struct {
		Name  string `json:"name"`
		Total uint64 `json:"total"`
		Self  uint64 `json:"self"`
	}

	// AnalysisMessage summarizes one analysis. It is both published to
	// Kafka and persisted next to the document.
	AnalysisMessage struct {
		DocumentID   string            `json:"document_id"`
		ProcessKey   uint64            `json:"process_key"`
		ProcessName  string            `json:"process_name"`
		OSID         uint32            `json:"os_id"`
		Selection    string            `json:"selection"`
		SourceIDs    []int             `json:"source_ids,omitempty"`
		Samples      uint64            `json:"samples"`
		TotalWeight  uint64            `json:"total_weight"`
		Nodes        int               `json:"nodes"`
		DurationNS   uint64            `json:"duration_ns"`
		Timestamp    int64             `json:"timestamp"`
		TopFunctions []FunctionSummary `json:"top_functions"`
		Modules      []ModuleSummary   `json:"modules"`
	}

	Publisher struct {
		writer Writer
		topic  string
	}
)

// NewKafkaWriter returns an asynchronous, lz4 compressed writer.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Async:        true,
		Balancer:     kafka.CRC32Balancer{},
		BatchSize:    10,
		Compression:  kafka.Lz4,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func NewPublisher(w Writer, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

// BuildAnalysisMessage summarizes a result with its top functions by self
// hits and its modules by total hits.
func BuildAnalysisMessage(documentID string, r *analysis.Result) AnalysisMessage {
	a := r.Aggregates
	m := AnalysisMessage{
		DocumentID:  documentID,
		ProcessKey:  r.Process.Key,
		ProcessName: r.Process.Name,
		OSID:        r.Process.OSID,
		Selection:   r.Selection.Key(),
		SourceIDs:   r.Tree.SourceIDs,
		Samples:     r.Tree.Samples,
		TotalWeight: r.Tree.Weight,
		Nodes:       r.Tree.Len(),
		DurationNS:  uint64(r.Duration),
		Timestamp:   time.Now().Unix(),
	}
	for _, f := range a.TopFunctions(defaultTopFunctions) {
		module, _ := a.Module(f.ModuleID)
		m.TopFunctions = append(m.TopFunctions, FunctionSummary{
			Name:   f.Name,
			Module: module.Name,
			Total:  f.Hits.Total,
			Self:   f.Hits.Self,
		})
	}
	for _, module := range a.ModulesByTotal() {
		m.Modules = append(m.Modules, ModuleSummary{
			Name:  module.Name,
			Total: module.Hits.Total,
			Self:  module.Hits.Self,
		})
	}
	return m
}

// Publish sends m keyed by its document id so that summaries of one
// document land in the same partition.
func (p *Publisher) Publish(ctx context.Context, m AnalysisMessage) error {
	b, err := gojson.Marshal(m)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(m.DocumentID),
		Value: b,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
