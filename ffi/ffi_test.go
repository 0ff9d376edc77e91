package ffi

import (
	"context"
	"testing"
	"time"

	hostbridge "github.com/hostbridge/plugin-runtime"
	"github.com/hostbridge/plugin-runtime/errors"
	"github.com/hostbridge/plugin-runtime/registry"
	"github.com/hostbridge/plugin-runtime/transport"
)

var keyLayout = transport.MustLayout(1,
	transport.Field{Name: "key", Kind: transport.KindBytes, Capacity: 32},
)

type echoPlugin struct{}

func (echoPlugin) Register(b *registry.Builder) error {
	if err := b.Handle("echo", func(_ context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}); err != nil {
		return err
	}
	return b.HandleBinary(2, keyLayout, func(_ context.Context, req []byte) ([]byte, error) {
		key, derr := keyLayout.String(req, "key")
		if derr != nil {
			return nil, derr
		}
		return []byte(key), nil
	})
}

func (echoPlugin) Start(context.Context) error { return nil }
func (echoPlugin) Stop(context.Context) error  { return nil }

func initEcho(t *testing.T) Handle {
	t.Helper()
	h, derr := Init(echoPlugin{}, nil, nil)
	if derr != nil {
		t.Fatal(derr)
	}
	if h == 0 {
		t.Fatal("zero handle for successful init")
	}
	t.Cleanup(func() { Shutdown(h, time.Second) })
	return h
}

func callEcho(t *testing.T, h Handle, tag string, payload []byte) transport.ResponseEnvelope {
	t.Helper()
	data, derr := transport.NewRequest(tag, payload).Encode()
	if derr != nil {
		t.Fatal(derr)
	}
	respData, _ := Call(h, data)
	resp, derr := transport.DecodeResponse(respData)
	if derr != nil {
		t.Fatal(derr)
	}
	return resp
}

func TestInit_InvalidConfig(t *testing.T) {
	h, derr := Init(echoPlugin{}, []byte(`{"log_level":"loud"}`), nil)
	if h != 0 {
		t.Fatal("failed init must return the zero handle")
	}
	if derr == nil || derr.Code != errors.CodeConfigInvalid {
		t.Fatalf("error = %v, want config invalid", derr)
	}
}

func TestCall_RoundTrip(t *testing.T) {
	h := initEcho(t)

	resp := callEcho(t, h, "echo", []byte(`{"v":42}`))
	if resp.Status != transport.StatusSuccess {
		t.Fatalf("status = %q, error = %s", resp.Status, resp.ErrorMessage)
	}
	if string(resp.Payload) != `{"v":42}` {
		t.Errorf("payload = %s", resp.Payload)
	}
}

func TestCall_InvalidHandle(t *testing.T) {
	data, code := Call(Handle(1<<40), nil)
	if code != uint32(errors.CodeInvalidHandle) {
		t.Fatalf("code = %d, want invalid handle", code)
	}
	resp, derr := transport.DecodeResponse(data)
	if derr != nil {
		t.Fatal(derr)
	}
	if resp.Status != transport.StatusError || resp.ErrorCode != uint32(errors.CodeInvalidHandle) {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestCallBinary_RoundTrip(t *testing.T) {
	h := initEcho(t)

	req := keyLayout.New()
	if derr := keyLayout.PutString(req, "key", "beta"); derr != nil {
		t.Fatal(derr)
	}

	buf := CallBinary(h, 2, req)
	if buf.Code != 0 {
		t.Fatalf("code = %d, message = %s", buf.Code, buf.Data)
	}
	if string(buf.Data) != "beta" {
		t.Errorf("data = %q", buf.Data)
	}
}

func TestCallBinary_ErrorBuffer(t *testing.T) {
	h := initEcho(t)

	buf := CallBinary(h, 77, make([]byte, keyLayout.Size()))
	if buf.Code != uint32(errors.CodeUnknownIdentifier) {
		t.Fatalf("code = %d, want unknown identifier", buf.Code)
	}
	if len(buf.Data) == 0 {
		t.Error("error buffer must carry the message")
	}
}

func TestShutdown_InvalidatesHandle(t *testing.T) {
	h, derr := Init(echoPlugin{}, nil, nil)
	if derr != nil {
		t.Fatal(derr)
	}

	if !Shutdown(h, time.Second) {
		t.Fatal("first shutdown must succeed")
	}
	if Shutdown(h, time.Second) {
		t.Fatal("second shutdown must report an unknown handle")
	}

	// The stale handle is rejected everywhere, not just at shutdown.
	if GetState(h) != hostbridge.StateInvalid {
		t.Error("stale handle must report the invalid state sentinel")
	}
	if _, code := Call(h, nil); code != uint32(errors.CodeInvalidHandle) {
		t.Error("stale handle must be rejected on call")
	}
	if SetLogLevel(h, 2) {
		t.Error("stale handle must be rejected on set-log-level")
	}
	if RejectedCount(h) != 0 {
		t.Error("stale handle must report a zero counter")
	}
}

func TestHandles_NeverReused(t *testing.T) {
	a, derr := Init(echoPlugin{}, nil, nil)
	if derr != nil {
		t.Fatal(derr)
	}
	Shutdown(a, time.Second)

	b, derr := Init(echoPlugin{}, nil, nil)
	if derr != nil {
		t.Fatal(derr)
	}
	defer Shutdown(b, time.Second)

	if b == a {
		t.Fatal("handle id reused after shutdown")
	}
}

func TestGetState_Running(t *testing.T) {
	h := initEcho(t)
	if got := GetState(h); got != uint8(hostbridge.StateRunning) {
		t.Fatalf("state byte = %d, want running", got)
	}
}

func TestSetLogLevel(t *testing.T) {
	h := initEcho(t)
	if !SetLogLevel(h, 4) {
		t.Error("valid level byte rejected")
	}
	if SetLogLevel(h, 9) {
		t.Error("invalid level byte accepted")
	}
}

func TestRejectedCount_StartsAtZero(t *testing.T) {
	h := initEcho(t)
	if n := RejectedCount(h); n != 0 {
		t.Fatalf("rejected count = %d, want 0", n)
	}
}
