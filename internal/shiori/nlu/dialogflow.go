package nlu

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	defaultDialogflowBase    = "https://api.dialogflow.com/v1"
	defaultDialogflowVersion = "20150910"
	defaultLang              = "en"
	defaultTimeout           = 15 * time.Second
	maxResponseBytes         = 1 << 20
)

//go:embed query_response.schema.json
var queryResponseSchema string

var queryResponse = jsonschema.MustCompileString("query_response.schema.json", queryResponseSchema)

// DialogflowConfig configures the agent-based NLU backend.
type DialogflowConfig struct {
	// Token is the client access token of the agent.
	Token string
	// BaseURL defaults to the public v1 endpoint.
	BaseURL string
	// Version is the protocol version date sent as ?v=.
	Version string
	Lang    string
	Timeout time.Duration
}

type dialogflow struct {
	cfg    DialogflowConfig
	client *http.Client
}

// NewDialogflow returns a Gateway for a Dialogflow-v1 style /query endpoint.
func NewDialogflow(cfg DialogflowConfig) Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDialogflowBase
	}
	if cfg.Version == "" {
		cfg.Version = defaultDialogflowVersion
	}
	if cfg.Lang == "" {
		cfg.Lang = defaultLang
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &dialogflow{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type dfRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
	Lang      string `json:"lang"`
}

type dfResponse struct {
	Status struct {
		Code         int    `json:"code"`
		ErrorType    string `json:"errorType"`
		ErrorDetails string `json:"errorDetails"`
	} `json:"status"`
	Result Result `json:"result"`
}

// Query sends text for interpretation within sessionID.
func (d *dialogflow) Query(ctx context.Context, text, sessionID string) (*Result, error) {
	fail := func(status int, err error) error {
		return &RequestError{Backend: "dialogflow", Status: status, Err: err}
	}

	body, err := json.Marshal(dfRequest{Query: text, SessionID: sessionID, Lang: d.cfg.Lang})
	if err != nil {
		return nil, fail(0, fmt.Errorf("marshal request: %w", err))
	}

	endpoint := d.cfg.BaseURL + "/query?" + url.Values{"v": {d.cfg.Version}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fail(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+d.cfg.Token)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode/100 != 2 {
		return nil, fail(resp.StatusCode, fmt.Errorf("unexpected status: %.200s", raw))
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if err := queryResponse.Validate(doc); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("response does not match schema: %w", err))
	}

	var out dfResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if out.Status.Code >= 400 {
		return nil, fail(out.Status.Code, errors.New(out.Status.ErrorType+": "+out.Status.ErrorDetails))
	}
	if out.Result.Parameters == nil {
		out.Result.Parameters = map[string]any{}
	}
	return &out.Result, nil
}
