package control

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestSendCommandRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	srv, err := Listen(sockPath, func(req Request) Response {
		if req.Op != "ping" {
			return errResp(nil)
		}
		return ok(map[string]string{"pong": "ok"})
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	resp, err := SendCommand(sockPath, "ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK {
		t.Fatalf("expected ok response, got %+v", resp)
	}

	var result map[string]string
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if result["pong"] != "ok" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestSendCommandUnknownOpReturnsError(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	srv, err := Listen(sockPath, (&Router{}).Handle)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	resp, err := SendCommand(sockPath, "does_not_exist", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.OK {
		t.Fatalf("expected an error response for an unknown op")
	}
	if resp.Error == nil {
		t.Fatal("expected a CoreError in the response")
	}
}

func TestSendCommandWellFormedRequestSucceeds(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	srv, err := Listen(sockPath, func(Request) Response { return ok(nil) })
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	resp, err := SendCommand(sockPath, "vad_set_threshold", map[string]float64{"threshold": 0.3})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK {
		t.Fatalf("expected well-formed request to succeed, got %+v", resp)
	}
}
