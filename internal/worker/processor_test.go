package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-toko/internal/events"
)

type settleCall struct {
	customerID string
	orderID    string
	revision   int
	total      decimal.Decimal
}

type fakeSettler struct {
	calls []settleCall
	err   error
}

func (f *fakeSettler) Settle(_ context.Context, customerID, orderID string, revision int, total decimal.Decimal) (int64, error) {
	f.calls = append(f.calls, settleCall{customerID, orderID, revision, total})
	if f.err != nil {
		return 0, f.err
	}
	return 9, nil
}

type captureEnqueuer struct {
	tasks []*asynq.Task
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func emitted(t *testing.T, topic string, payload any) *asynq.Task {
	t.Helper()
	q := &captureEnqueuer{}
	bus := &events.Bus{Client: q}
	_, err := bus.Emit(context.Background(), topic, "o-1", payload)
	require.NoError(t, err)
	require.Len(t, q.tasks, 1)
	return q.tasks[0]
}

func TestHandleLoyaltySettle(t *testing.T) {
	settler := &fakeSettler{}
	p := &Processor{Loyalty: settler}

	task := emitted(t, events.TaskLoyaltySettle, events.LoyaltySettle{
		OrderID: "o-1", CustomerID: "c-1", Revision: 3, Total: decimal.RequireFromString("96.80"),
	})
	require.NoError(t, p.HandleLoyaltySettle(context.Background(), task))
	require.Len(t, settler.calls, 1)
	assert.Equal(t, "c-1", settler.calls[0].customerID)
	assert.Equal(t, 3, settler.calls[0].revision)
	assert.True(t, decimal.RequireFromString("96.8").Equal(settler.calls[0].total))
}

func TestHandleLoyaltySettleGuestOrderSkipped(t *testing.T) {
	settler := &fakeSettler{}
	p := &Processor{Loyalty: settler}

	task := emitted(t, events.TaskLoyaltySettle, events.LoyaltySettle{OrderID: "o-1", Revision: 1})
	require.NoError(t, p.HandleLoyaltySettle(context.Background(), task))
	assert.Empty(t, settler.calls)
}

func TestHandleLoyaltySettleErrors(t *testing.T) {
	boom := errors.New("db down")
	p := &Processor{Loyalty: &fakeSettler{err: boom}}

	task := emitted(t, events.TaskLoyaltySettle, events.LoyaltySettle{OrderID: "o-1", CustomerID: "c-1", Revision: 1})
	err := p.HandleLoyaltySettle(context.Background(), task)
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	err = p.HandleLoyaltySettle(context.Background(), asynq.NewTask(events.TaskLoyaltySettle, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	task = emitted(t, events.TaskLoyaltySettle, events.LoyaltySettle{CustomerID: "c-1"})
	require.ErrorIs(t, p.HandleLoyaltySettle(context.Background(), task), asynq.SkipRetry)
}

func TestHandleOrderEventLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	p := &Processor{Logger: &logger}

	task := emitted(t, events.TopicOrderUpdated, events.OrderChanged{OrderID: "o-1", Revision: 2, Total: decimal.RequireFromString("10")})
	require.NoError(t, p.HandleOrderEvent(context.Background(), task))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, events.TopicOrderUpdated, line["topic"])
	assert.Equal(t, "10.00", line["total"])
}

func TestRegisterRoutesTasks(t *testing.T) {
	settler := &fakeSettler{}
	p := &Processor{Loyalty: settler}
	mux := asynq.NewServeMux()
	p.Register(mux)

	task := emitted(t, events.TaskLoyaltySettle, events.LoyaltySettle{OrderID: "o-1", CustomerID: "c-1", Revision: 1})
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Len(t, settler.calls, 1)

	require.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask("unknown", nil)))
}
