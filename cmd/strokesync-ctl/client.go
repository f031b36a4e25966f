package main

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Wire types (duplicated from the daemon for a standalone binary).

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type axisLimits struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Speed float64 `json:"speed"`
}

type ipcResponse struct {
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
	Limits *axisLimits `json:"limits,omitempty"`
}

type limitRequest struct {
	Axis   string   `json:"axis"`
	MinBy  *float64 `json:"min_by,omitempty"`
	MaxBy  *float64 `json:"max_by,omitempty"`
	MinNew *float64 `json:"min_new,omitempty"`
	MaxNew *float64 `json:"max_new,omitempty"`
}

const dialTimeout = 2 * time.Second

// encodeEvent builds one line-delimited JSON event. data may be nil.
func encodeEvent(typ string, data any) ([]byte, error) {
	env := envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", typ, err)
		}
		env.Data = raw
	}
	line, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

// send delivers one event to the daemon and waits for its response.
func send(socketPath, typ string, data any) (ipcResponse, error) {
	line, err := encodeEvent(typ, data)
	if err != nil {
		return ipcResponse{}, err
	}

	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write(line); err != nil {
		return ipcResponse{}, fmt.Errorf("send %s: %w", typ, err)
	}

	var resp ipcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return ipcResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}
