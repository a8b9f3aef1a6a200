package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, string, interface{}) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingPublisher) Close() {}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	p := &failingPublisher{}
	assert.NotPanics(t, func() {
		Emit(context.Background(), p, SessionFinished, SessionFinishedPayload{SessionID: 1})
	})
	assert.Equal(t, 1, p.calls)
}

func TestEmitNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, SessionAbandoned, nil)
	})
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), SessionFinished, SessionFinishedPayload{}))
	p.Close()
}
