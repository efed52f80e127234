// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/canopy/internal/bridge"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================================
// MQTT
// ============================================================================

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, finished bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if finished {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload interface{}
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	token    mqtt.Token
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, qos: qos, payload: payload})
	return f.token
}

func TestMQTTMirror_Publish(t *testing.T) {
	tests := []struct {
		name  string
		token mqtt.Token
	}{
		{"delivered", newFakeToken(nil, true)},
		{"failed", newFakeToken(errors.New("not connected"), true)},
		{"still in flight", newFakeToken(nil, false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{token: tt.token}
			m := NewMQTTMirror(pub, "greenhouse/log", quietLogger())

			m.Publish(bridge.MessageEntry{ID: 7, Payload: `{"type":"data","temp":20}`})

			require.Len(t, pub.messages, 1)
			assert.Equal(t, "greenhouse/log", pub.messages[0].topic)
			assert.Equal(t, byte(0), pub.messages[0].qos)
			assert.Equal(t, `{"type":"data","temp":20}`, pub.messages[0].payload)
		})
	}
}

func TestMQTTMirror_FollowsLog(t *testing.T) {
	pub := &fakePublisher{token: newFakeToken(nil, true)}
	m := NewMQTTMirror(pub, "canopy/messages", quietLogger())

	log := bridge.NewMessageLog(2)
	log.OnAppend(m.Publish)
	log.Append("a")
	log.Append("b")
	log.Append("c")

	require.Len(t, pub.messages, 3)
	assert.Equal(t, "c", pub.messages[2].payload)
	assert.NotPanics(t, m.Close)
}

func TestDialMQTT_GivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := DialMQTT(ctx, MQTTOptions{
		Broker:   "tcp://127.0.0.1:1",
		Topic:    "canopy/messages",
		ClientID: "canopy-test",
		Retries:  1,
	}, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp://127.0.0.1:1")
}

// ============================================================================
// InfluxDB
// ============================================================================

type influxServer struct {
	mu     sync.Mutex
	bodies []string
	query  string
}

func (s *influxServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v2/write" {
		http.NotFound(w, r)
		return
	}
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.bodies = append(s.bodies, string(body))
	s.query = r.URL.RawQuery
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func TestInfluxRecorder_Record(t *testing.T) {
	srv := &influxServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	r := NewInfluxRecorder(InfluxOptions{
		URL:       ts.URL,
		Token:     "secret",
		Org:       "home",
		Bucket:    "greenhouse",
		BatchSize: 1,
	}, quietLogger())

	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	r.Record(bridge.SensorSnapshot{
		Valid:     true,
		Temp:      21.5,
		Humi:      55,
		Soil:      40,
		Lux:       1200,
		Light:     1,
		UpdatedAt: at,
	})
	r.Close()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.bodies, 1)
	line := strings.TrimSpace(srv.bodies[0])

	assert.True(t, strings.HasPrefix(line, "sensor,source=canopy "), line)
	for _, field := range []string{"temp=21.5", "humi=55", "soil=40i", "lux=1200", "light=1i", "water=0i", "fan=0i", "buzzer=0i"} {
		assert.Contains(t, line, field)
	}
	assert.True(t, strings.HasSuffix(line, " 1748764800000000000"), line)
	assert.Contains(t, srv.query, "bucket=greenhouse")
	assert.Contains(t, srv.query, "org=home")
	assert.Zero(t, r.Errors())
}
