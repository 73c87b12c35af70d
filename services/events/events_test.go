package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/services/events"
)

type logLine struct {
	level string
	msg   string
	args  []interface{}
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *recordingLogger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *recordingLogger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

func (l *recordingLogger) find(msg string) (logLine, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line.msg == msg {
			return line, true
		}
	}
	return logLine{}, false
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus, err := events.New(core.NewTestConfig(), core.NewNopLogger())
	require.NoError(t, err)

	received := make(chan core.Event, 1)
	require.NoError(t, bus.Subscribe(context.Background(), func(_ context.Context, evt core.Event) error {
		received <- evt
		return nil
	}))

	sent := core.Event{
		Type:     core.EventRatingChanged,
		Time:     time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC),
		ActorID:  "actor",
		TargetID: "target",
		Data:     map[string]interface{}{"class_group": "A"},
	}
	require.NoError(t, bus.Publish(context.Background(), sent))

	select {
	case evt := <-received:
		assert.Equal(t, sent.Type, evt.Type)
		assert.True(t, sent.Time.Equal(evt.Time))
		assert.Equal(t, sent.ActorID, evt.ActorID)
		assert.Equal(t, sent.TargetID, evt.TargetID)
		assert.Equal(t, "A", evt.Data["class_group"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	assert.NoError(t, bus.Close())
}

func TestBus_Audit(t *testing.T) {
	logger := new(recordingLogger)
	bus, err := events.New(core.NewTestConfig(), logger)
	require.NoError(t, err)

	done := make(chan struct{})
	audit := events.Audit(logger)
	require.NoError(t, bus.Subscribe(context.Background(), func(ctx context.Context, evt core.Event) error {
		defer close(done)
		return audit(ctx, evt)
	}))

	require.NoError(t, bus.Publish(context.Background(), core.Event{
		Type:     core.EventComplaintFiled,
		TargetID: "target",
		Data:     map[string]interface{}{"complaint_id": "c1"},
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	require.NoError(t, bus.Close())

	line, ok := logger.find("audit: " + core.EventComplaintFiled)
	require.True(t, ok)
	assert.Equal(t, "info", line.level)
	require.Len(t, line.args, 1)
	extras, ok := line.args[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "target", extras["target_id"])
	assert.Equal(t, "c1", extras["complaint_id"])
	assert.NotContains(t, extras, "actor_id", "complaint events are anonymous")
}

func TestNewBus_MissingDeps(t *testing.T) {
	_, err := events.New(core.NewTestConfig(), nil)
	assert.Error(t, err)

	_, err = events.NewBus(nil, nil, "", nil)
	assert.Error(t, err)
}
