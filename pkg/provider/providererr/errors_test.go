package providererr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindPermanence(t *testing.T) {
	permanent := []Kind{KindAuth, KindBadRequest}
	transient := []Kind{KindRateLimit, KindTimeout, KindNetwork, KindServer, KindEmptyResponse, KindUnknown}

	for _, k := range permanent {
		assert.True(t, k.Permanent(), "kind %s should be permanent", k)
	}
	for _, k := range transient {
		assert.False(t, k.Permanent(), "kind %s should be transient", k)
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := NewWithCause(KindNetwork, cause, "network error")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.True(t, Is(err, KindNetwork))
	assert.False(t, Is(err, KindTimeout))
	assert.False(t, IsPermanent(err))

	// Classification survives further wrapping.
	wrapped := fmt.Errorf("call failed: %w", err)
	assert.Equal(t, KindNetwork, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindNetwork))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("something odd")))
	assert.False(t, IsPermanent(errors.New("something odd")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil stays nil", err: nil},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "canceled", err: context.Canceled, want: KindTimeout},
		{name: "already classified", err: New(KindAuth, "bad key"), want: KindAuth},
		{name: "status in message", err: errors.New("request failed, status code: 429"), want: KindRateLimit},
		{name: "server status in message", err: errors.New("upstream error, status: 503"), want: KindServer},
		{name: "rate words", err: errors.New("quota exceeded for project"), want: KindRateLimit},
		{name: "timeout words", err: errors.New("i/o timeout"), want: KindTimeout},
		{name: "network words", err: errors.New("dial tcp: no such host"), want: KindNetwork},
		{name: "auth words", err: errors.New("invalid api key provided"), want: KindAuth},
		{name: "bad request words", err: errors.New("malformed request body"), want: KindBadRequest},
		{name: "anything else", err: errors.New("weird"), want: KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if tt.err == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{status: 401, want: KindAuth},
		{status: 403, want: KindAuth},
		{status: 429, want: KindRateLimit},
		{status: 400, want: KindBadRequest},
		{status: 404, want: KindBadRequest},
		{status: 413, want: KindBadRequest},
		{status: 422, want: KindBadRequest},
		{status: 408, want: KindTimeout},
		{status: 500, want: KindServer},
		{status: 529, want: KindServer},
		{status: 302, want: KindUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := FromStatus(tt.status, nil)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestExtractStatusCode(t *testing.T) {
	tests := []struct {
		msg  string
		want int
	}{
		{msg: "request failed, status code: 429, retry later", want: 429},
		{msg: "Status: 500 internal error", want: 500},
		{msg: "got HTTP 503 from upstream", want: 503},
		{msg: "no status here", want: 0},
		{msg: "", want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractStatusCode(tt.msg), "msg %q", tt.msg)
	}
}

func TestErrorString(t *testing.T) {
	assert.Contains(t, New(KindRateLimit, "slow down").Error(), "rate_limit")
	assert.Contains(t, New(KindRateLimit, "slow down").Error(), "slow down")
	assert.Contains(t, NewWithStatus(KindServer, 503, "").Error(), "503")
}
