package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/nalgeon/be"
)

func TestProcess(t *testing.T) {
	s := New(Options{MaxFrames: 32})

	tests := []struct {
		name string
		req  Request
		want func(t *testing.T, r Response)
	}{
		{"run", Request{ID: "1", Op: OpRun, Source: `print("hi"); 6 * 7`}, func(t *testing.T, r Response) {
			be.True(t, r.OK)
			be.Equal(t, r.Result, "42")
			be.Equal(t, r.Type, "int")
			be.Equal(t, r.Output, "hi\n")
		}},
		{"trap", Request{ID: "2", Op: OpRun, Source: "let z = 0;\n1 / z"}, func(t *testing.T, r Response) {
			be.Equal(t, r.OK, false)
			be.Equal(t, r.Trap.Kind, "division by zero")
			be.Equal(t, r.Trap.Line, 2)
			be.Equal(t, len(r.Trap.Stack), 1)
		}},
		{"overflow uses server frame limit", Request{ID: "3", Op: OpRun, Source: "func f() { f() } f()"}, func(t *testing.T, r Response) {
			be.Equal(t, r.Trap.Kind, "stack overflow")
			be.True(t, strings.Contains(r.Trap.Message, "32"))
		}},
		{"check", Request{ID: "4", Op: OpCheck, Source: "let a = ;"}, func(t *testing.T, r Response) {
			be.Equal(t, r.OK, false)
			be.Equal(t, len(r.Diagnostics), 1)
			be.Equal(t, r.Diagnostics[0].Message, "expected expression, found ';'")
		}},
		{"compile", Request{ID: "5", Op: OpCompile, Source: "func f() { 1 } f()"}, func(t *testing.T, r Response) {
			be.True(t, r.OK)
			be.Equal(t, r.Module.Functions, 2)
			be.True(t, r.Module.Bytes > 0)
		}},
		{"compile error", Request{ID: "6", Op: OpCompile, Source: "nope"}, func(t *testing.T, r Response) {
			be.Equal(t, r.OK, false)
			be.Equal(t, r.Error, `<ws>:1:1: error: unresolved identifier "nope"`)
		}},
		{"unknown op", Request{ID: "7", Op: "fly"}, func(t *testing.T, r Response) {
			be.Equal(t, r.Error, `unknown op "fly"`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := s.Process(tt.req)
			be.Equal(t, r.ID, tt.req.ID)
			be.True(t, r.Diagnostics != nil)
			tt.want(t, r)
		})
	}
}

func TestRunStepLimit(t *testing.T) {
	s := New(Options{MaxSteps: 1000})
	r := s.Process(Request{ID: "s", Op: OpRun, Source: "while true { }"})
	be.Equal(t, r.OK, false)
	be.Equal(t, r.Trap.Kind, "step limit")
	be.True(t, strings.Contains(r.Trap.Message, "1000"))

	r = s.Process(Request{ID: "t", Op: OpRun, Source: "let mut n = 0; while n < 10 { n += 1; } n"})
	be.True(t, r.OK)
	be.Equal(t, r.Result, "10")
}

func TestDefaultStepLimit(t *testing.T) {
	be.Equal(t, New(Options{}).opts.MaxSteps, int64(DefaultMaxSteps))
}

func TestOutputLimit(t *testing.T) {
	b := &limitedBuffer{limit: 4}
	b.Write([]byte("abc"))
	b.Write([]byte("def"))
	be.Equal(t, b.String(), "abcd\n[output truncated]")
}

func TestWebSocket(t *testing.T) {
	s := New(Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	be.Err(t, err, nil)
	defer conn.Close()

	be.Err(t, conn.WriteJSON(Request{ID: "a", Op: OpRun, Source: "[1, 2][1]"}), nil)
	var first Response
	be.Err(t, conn.ReadJSON(&first), nil)
	be.Equal(t, first.ID, "a")
	be.Equal(t, first.Result, "2")
	be.True(t, first.Session != "")
	be.Equal(t, s.Sessions(), []string{first.Session})

	be.Err(t, conn.WriteMessage(websocket.TextMessage, []byte("{")), nil)
	var second Response
	be.Err(t, conn.ReadJSON(&second), nil)
	be.True(t, strings.HasPrefix(second.Error, "malformed request"))
	be.Equal(t, second.Session, first.Session)
}

func TestRequestTooLarge(t *testing.T) {
	s := New(Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	be.Err(t, err, nil)
	defer conn.Close()

	big := Request{ID: "big", Op: OpCheck, Source: strings.Repeat("1;", MaxRequest)}
	// The server may drop the connection before the write finishes.
	conn.WriteJSON(big)
	_, _, err = conn.ReadMessage()
	be.True(t, err != nil)
}

func TestHealthz(t *testing.T) {
	ts := httptest.NewServer(New(Options{}).Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/healthz")
	be.Err(t, err, nil)
	defer resp.Body.Close()
	var body map[string]interface{}
	be.Err(t, json.NewDecoder(resp.Body).Decode(&body), nil)
	be.Equal(t, body["status"], "ok")
}
