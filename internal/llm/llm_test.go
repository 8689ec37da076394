package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketfight/appeal-service/internal/config"
)

func TestAnthropic_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "system prompt", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"claude-x","content":[{"type":"text","text":"Refined."}],"usage":{"input_tokens":10,"output_tokens":3}}`)
	}))
	defer srv.Close()

	p := NewAnthropic("sk-test", srv.URL, "claude-x", 5*time.Second)
	resp, err := p.Complete(context.Background(), Request{System: "system prompt", User: "hello", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "Refined.", resp.Text)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 3, resp.OutputTokens)
}

func TestAnthropic_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{529, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		tt := tt
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			io.WriteString(w, `{"error":"nope"}`)
		}))
		_, err := NewAnthropic("k", srv.URL, "m", time.Second).Complete(context.Background(), Request{User: "x"})
		srv.Close()

		require.Error(t, err)
		var le *Error
		require.True(t, errors.As(err, &le))
		assert.Equal(t, tt.status, le.StatusCode)
		assert.Equal(t, tt.retryable, IsRetryable(err), "status %d", tt.status)
	}
}

func TestAnthropic_TimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewAnthropic("k", srv.URL, "m", 20*time.Millisecond).Complete(context.Background(), Request{User: "x"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestOpenAI_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-oa", r.Header.Get("Authorization"))
		io.WriteString(w, `{"model":"gpt-4o","choices":[{"message":{"content":"Refined."}}]}`)
	}))
	defer srv.Close()

	resp, err := NewOpenAI("sk-oa", srv.URL, "gpt-4o", time.Second).Complete(context.Background(), Request{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Refined.", resp.Text)
}

func TestOpenAI_EmptyChoicesRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL, "m", time.Second).Complete(context.Background(), Request{User: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.True(t, IsRetryable(err))
}

type fakeBedrock struct {
	body []byte
	err  error
	in   *bedrockruntime.InvokeModelInput
}

func (f *fakeBedrock) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestBedrock_Complete(t *testing.T) {
	fake := &fakeBedrock{body: []byte(`{"content":[{"type":"text","text":"Refined."}]}`)}
	resp, err := NewBedrock(fake, "anthropic.claude-3-haiku").Complete(context.Background(), Request{System: "s", User: "u", MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "Refined.", resp.Text)

	var sent bedrockRequest
	require.NoError(t, json.Unmarshal(fake.in.Body, &sent))
	assert.Equal(t, bedrockAnthropicVersion, sent.AnthropicVersion)
	assert.Equal(t, "s", sent.System)
}

func TestBedrock_ThrottlingRetryable(t *testing.T) {
	fake := &fakeBedrock{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}}
	_, err := NewBedrock(fake, "m").Complete(context.Background(), Request{User: "u"})
	assert.True(t, IsRetryable(err))

	fake.err = &smithy.GenericAPIError{Code: "ValidationException", Message: "bad"}
	_, err = NewBedrock(fake, "m").Complete(context.Background(), Request{User: "u"})
	assert.False(t, IsRetryable(err))
}

func TestFromConfig(t *testing.T) {
	_, err := FromConfig(context.Background(), config.LLMConfig{Provider: "anthropic"})
	assert.Error(t, err, "missing key")

	p, err := FromConfig(context.Background(), config.LLMConfig{Provider: "openai", OpenAIAPIKey: "k", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = FromConfig(context.Background(), config.LLMConfig{Provider: "cohere"})
	assert.Error(t, err)
}

type echoProvider struct{ err error }

func (echoProvider) Name() string  { return "echo" }
func (echoProvider) Model() string { return "echo-1" }
func (e echoProvider) Complete(_ context.Context, req Request) (*Response, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &Response{Text: req.User, Provider: "echo", Model: "echo-1"}, nil
}

func TestWithTiming_ObservesSuccessAndFailure(t *testing.T) {
	var seen []string
	observe := func(provider string, d time.Duration) {
		assert.GreaterOrEqual(t, d, time.Duration(0))
		seen = append(seen, provider)
	}

	p := WithTiming(echoProvider{}, observe)
	resp, err := p.Complete(context.Background(), Request{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
	assert.Equal(t, "echo-1", p.Model())

	failing := WithTiming(echoProvider{err: errors.New("boom")}, observe)
	_, err = failing.Complete(context.Background(), Request{})
	assert.Error(t, err)
	assert.Equal(t, []string{"echo", "echo"}, seen)
}
