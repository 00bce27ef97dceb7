package intent_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/petasbytes/go-chatgraph/internal/intent"
)

func TestClassify_Table(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want intent.Intent
	}{
		{"HelloLower", "hello there", intent.Greeting},
		{"HelloMixedCase", "HeLLo", intent.Greeting},
		{"ChineseGreeting", "你好！", intent.Greeting},
		{"HiWord", "hi, how are you?", intent.Greeting},
		{"HiInsideWordIgnored", "this is fine", intent.General},
		{"Bye", "ok bye", intent.Farewell},
		{"Goodbye", "Goodbye for now", intent.Farewell},
		{"ChineseFarewell", "谢谢你的解释。再见！", intent.Farewell},
		{"AsciiQuestion", "what is AI?", intent.Question},
		{"FullWidthQuestion", "什么是人工智能？", intent.Question},
		{"GreetingBeatsQuestion", "hello, can you help?", intent.Greeting},
		{"FarewellBeatsQuestion", "bye?", intent.Farewell},
		{"General", "tell me about go", intent.General},
		{"Empty", "", intent.General},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := intent.Classify(tc.in); got != tc.want {
				t.Fatalf("Classify(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestKeyword_NeverFails(t *testing.T) {
	got, err := intent.Keyword{}.Classify(context.Background(), "再见")
	if err != nil || got != intent.Farewell {
		t.Fatalf("want farewell,nil; got %q,%v", got, err)
	}
}

func TestParse(t *testing.T) {
	got, err := intent.Parse(" Question ")
	if err != nil || got != intent.Question {
		t.Fatalf("want question,nil; got %q,%v", got, err)
	}
	if _, err := intent.Parse("small_talk"); err == nil {
		t.Fatal("expected error for unknown label")
	}
}

func TestGenerateSchema_HasIntentEnum(t *testing.T) {
	b, err := json.Marshal(intent.RecordIntentInputSchema)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"intent"`, `"greeting"`, `"farewell"`, `"question"`, `"general"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("schema missing %s: %s", want, s)
		}
	}
}

func TestToolClassifier_ReadsToolInput(t *testing.T) {
	resp := `{
	"role": "assistant",
	"content": [{"type": "tool_use", "id": "t1", "name": "record_intent", "input": {"intent": "question"}}]
	}`
	fake := &fakeTransport{respStatus: 200, respBody: []byte(resp)}
	c := intent.NewToolClassifier(newClientWithTransport(fake), anthropic.ModelClaude3_7SonnetLatest)

	got, err := c.Classify(context.Background(), "how does this work")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != intent.Question {
		t.Fatalf("want question, got %q", got)
	}

	var body struct {
		ToolChoice struct {
			Type string `json:"type"`
			Name string `json:"name"`
		} `json:"tool_choice"`
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(fake.body, &body); err != nil {
		t.Fatalf("unmarshal body: %v\nbody=%s", err, string(fake.body))
	}
	if body.ToolChoice.Name != "record_intent" || len(body.Tools) != 1 || body.Tools[0].Name != "record_intent" {
		t.Fatalf("unexpected request: %s", string(fake.body))
	}
}

func TestToolClassifier_NoToolCall_ReturnsError(t *testing.T) {
	resp := `{"role":"assistant","content":[{"type":"text","text":"greeting"}]}`
	fake := &fakeTransport{respStatus: 200, respBody: []byte(resp)}
	c := intent.NewToolClassifier(newClientWithTransport(fake), anthropic.ModelClaude3_7SonnetLatest)

	if _, err := c.Classify(context.Background(), "hi"); err == nil || !strings.Contains(err.Error(), "did not call") {
		t.Fatalf("expected missing tool call error, got %v", err)
	}
}

func TestToolClassifier_UnknownLabel_ReturnsError(t *testing.T) {
	resp := `{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"record_intent","input":{"intent":"rant"}}]}`
	fake := &fakeTransport{respStatus: 200, respBody: []byte(resp)}
	c := intent.NewToolClassifier(newClientWithTransport(fake), anthropic.ModelClaude3_7SonnetLatest)

	if _, err := c.Classify(context.Background(), "ugh"); err == nil {
		t.Fatal("expected error for unknown label")
	}
}

type fakeTransport struct {
	respStatus int
	respBody   []byte
	body       []byte
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	f.body = b
	resp := &http.Response{
		StatusCode: f.respStatus,
		Body:       io.NopCloser(bytes.NewReader(f.respBody)),
		Header:     make(http.Header),
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func newClientWithTransport(rt http.RoundTripper) *anthropic.Client {
	c := anthropic.NewClient(
		option.WithHTTPClient(&http.Client{Transport: rt}),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	return &c
}
