package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/health-insight/internal/domain/events"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

type MockSQS struct{ mock.Mock }

func (m *MockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

func sampleEvent() domain.ExamAnalyzed {
	return domain.ExamAnalyzed{
		Type: domain.TypeExamAnalyzed, ExamID: "e1", UserID: "7", RiskLevel: "attention",
		Anomaly: true, InsightIDs: []string{"i1", "i2"},
		OccurredAt: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w}

	require.NoError(t, p.PublishExamAnalyzed(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "e1", string(w.msgs[0].Key))

	var got domain.ExamAnalyzed
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, sampleEvent(), got)

	w.err = errors.New("broker down")
	assert.ErrorContains(t, p.PublishExamAnalyzed(context.Background(), sampleEvent()), "broker down")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestSQSPublisher(t *testing.T) {
	m := &MockSQS{}
	p := &SQSPublisher{client: m, queueURL: "http://localhost:4566/000000000000/exams"}

	m.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		var e domain.ExamAnalyzed
		return aws.ToString(in.QueueUrl) == "http://localhost:4566/000000000000/exams" &&
			json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &e) == nil &&
			e.ExamID == "e1" &&
			aws.ToString(in.MessageAttributes["type"].StringValue) == domain.TypeExamAnalyzed
	})).Return(&sqs.SendMessageOutput{}, nil).Once()

	require.NoError(t, p.PublishExamAnalyzed(context.Background(), sampleEvent()))
	m.AssertExpectations(t)
}
