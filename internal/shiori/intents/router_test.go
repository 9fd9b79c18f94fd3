package intents_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/bdobrica/shiori/internal/shiori/intents"
)

func TestKeyFor(t *testing.T) {
	tests := map[string]string{
		"HandleNameAgentGet":    "name.agent.get",
		"HandleNameAgentChange": "name.agent.change",
		"HandleDeviceAgentList": "device.agent.list",
		"HandleSmalltalk":       "smalltalk",
		"HandleHTTPStatusGet":   "http.status.get",
		"HandleV2NameGet":       "v2.name.get",
		"NameAgentGet":          "name.agent.get",
	}
	for in, want := range tests {
		if got := intents.KeyFor(in); got != want {
			t.Errorf("KeyFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func noop(context.Context, intents.Params) (intents.Outcome, error) {
	return intents.Reply("ok"), nil
}

func TestRouter_FindHandler(t *testing.T) {
	r := intents.NewRouter(
		intents.Route{Capability: "HandleNameAgentGet", Handler: noop},
		intents.Route{Capability: "HandleNameAgentDelete", Handler: noop},
	)

	if h, ok := r.FindHandler("name.agent.get"); !ok || h == nil {
		t.Fatal("expected handler for name.agent.get")
	}
	if _, ok := r.FindHandler("unknown.intent"); ok {
		t.Error("unexpected handler for unknown.intent")
	}
	if _, ok := r.FindHandler("Name.Agent.Get"); ok {
		t.Error("lookup must be an exact match")
	}

	want := []string{"name.agent.delete", "name.agent.get"}
	if got := r.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestRouter_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate key")
		}
	}()
	intents.NewRouter(
		intents.Route{Capability: "HandleNameAgentGet", Handler: noop},
		intents.Route{Capability: "NameAgentGet", Handler: noop},
	)
}

func TestRouter_Invoke(t *testing.T) {
	boom := errors.New("boom")
	var seen intents.Params
	r := intents.NewRouter(
		intents.Route{Capability: "HandleEchoGet", Handler: func(_ context.Context, p intents.Params) (intents.Outcome, error) {
			seen = p
			return intents.Reply("echo %s", p.String("text")), nil
		}},
		intents.Route{Capability: "HandleFailGet", Handler: func(context.Context, intents.Params) (intents.Outcome, error) {
			return intents.Outcome{}, boom
		}},
	)

	out, found, err := r.Invoke(context.Background(), "echo.get", intents.Params{"text": " hi "})
	if err != nil || !found || out.Text != "echo hi" {
		t.Errorf("Invoke echo = %+v, %v, %v", out, found, err)
	}
	if seen == nil {
		t.Error("handler did not receive params")
	}

	_, found, err = r.Invoke(context.Background(), "fail.get", nil)
	var herr *intents.HandlerError
	if !found || !errors.As(err, &herr) || !errors.Is(err, boom) || herr.Intent != "fail.get" {
		t.Errorf("Invoke fail = %v, %v", found, err)
	}

	out, found, err = r.Invoke(context.Background(), "missing", nil)
	if found || err != nil || !out.Empty() {
		t.Errorf("Invoke missing = %+v, %v, %v", out, found, err)
	}
}

func TestParams_String(t *testing.T) {
	p := intents.Params{"s": "  x ", "n": 3, "nil": nil}
	if p.String("s") != "x" || p.String("n") != "3" || p.String("nil") != "" || p.String("absent") != "" {
		t.Errorf("unexpected Params.String results")
	}
}
