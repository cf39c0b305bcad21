//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"interop-gateway/internal/gateway/audit"
	"interop-gateway/pkg/testutil/containers"
)

const testAuditTopic = "gateway.dispatch.audit.test"

type KafkaSinkSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	sink     *audit.KafkaSink
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.redpanda = containers.NewRedpandaContainer(s.T())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sink, err := audit.NewKafkaSink(ctx, s.redpanda.Brokers, testAuditTopic)
	s.Require().NoError(err)
	s.sink = sink
}

func (s *KafkaSinkSuite) TearDownSuite() {
	if s.sink != nil {
		s.sink.Close()
	}
}

func (s *KafkaSinkSuite) TestAppendProducesKeyedEvent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	want := audit.Event{
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
		SystemCode: "PHILSYS",
		Endpoint:   "/api/v1/verify",
		Method:     "POST",
		RequestID:  "req-42",
		Outcome:    audit.OutcomeSuccess,
		StatusCode: 200,
		LatencyMs:  87,
	}
	s.Require().NoError(s.sink.Append(ctx, want))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(testAuditTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().NotEmpty(records)

	record := records[len(records)-1]
	s.Equal("PHILSYS", string(record.Key), "events are keyed by system code")

	var got audit.Event
	s.Require().NoError(json.Unmarshal(record.Value, &got))
	s.Equal(want.SystemCode, got.SystemCode)
	s.Equal(want.RequestID, got.RequestID)
	s.Equal(want.Outcome, got.Outcome)
	s.Equal(want.LatencyMs, got.LatencyMs)
}

func (s *KafkaSinkSuite) TestEnsureTopicIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Creating a sink against an existing topic must not fail.
	sink, err := audit.NewKafkaSink(ctx, s.redpanda.Brokers, testAuditTopic)
	s.Require().NoError(err)
	sink.Close()
}
