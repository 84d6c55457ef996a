package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Envelope(t *testing.T) {
	type registered struct {
		PrincipalID string   `json:"principal_id"`
		Roles       []string `json:"roles"`
	}

	evt, err := NewEvent("erp.identity.registered", "p-123", "principal", "identity-service",
		registered{PrincipalID: "p-123", Roles: []string{"viewer"}})
	require.NoError(t, err)

	_, err = uuid.Parse(evt.EventID)
	assert.NoError(t, err)
	assert.Equal(t, "erp.identity.registered", evt.EventType)
	assert.Equal(t, "p-123", evt.AggregateID)
	assert.Equal(t, "principal", evt.AggregateType)
	assert.Equal(t, "identity-service", evt.Source)
	assert.Equal(t, envelopeVersion, evt.Version)
	assert.Equal(t, time.UTC, evt.Timestamp.Location())
	assert.WithinDuration(t, time.Now(), evt.Timestamp, 2*time.Second)
	assert.JSONEq(t, `{"principal_id":"p-123","roles":["viewer"]}`, string(evt.Data))
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent("erp.identity.logged_in", "p-1", "principal", "identity-service", func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "erp.identity.logged_in")
}

func TestEvent_MarshalUsesSnakeCase(t *testing.T) {
	evt, err := NewEvent("erp.identity.sign_out_all", "p-9", "principal", "identity-service", map[string]int{"revoked": 3})
	require.NoError(t, err)
	evt.WithCorrelationID("corr-42")

	raw, err := evt.Marshal()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"event_id", "event_type", "aggregate_id", "aggregate_type", "correlation_id", "data"} {
		assert.Contains(t, fields, key)
	}
	assert.JSONEq(t, `"corr-42"`, string(fields["correlation_id"]))
}

func TestEvent_CorrelationOmittedWhenUnset(t *testing.T) {
	evt, err := NewEvent("erp.identity.deactivated", "p-9", "principal", "identity-service", nil)
	require.NoError(t, err)

	raw, err := evt.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correlation_id")
}

// --- ProducerConfig tests ---

func TestDefaultProducerConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultProducerConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
}

func TestDefaultProducerConfig_SingleBroker(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"localhost:9092"})
	assert.Len(t, cfg.Brokers, 1)
	assert.Equal(t, "localhost:9092", cfg.Brokers[0])
}

// --- Topic tests ---

func TestTopic_Format(t *testing.T) {
	got := Topic("identity", "registered")
	assert.Equal(t, "erp.identity.registered", got)
}

func TestTopic_Prefix(t *testing.T) {
	assert.Equal(t, "erp", TopicPrefix)
}

func TestTopic_VariousCombinations(t *testing.T) {
	tests := []struct {
		domain string
		action string
		want   string
	}{
		{"identity", "signed_out", "erp.identity.signed_out"},
		{"identity", "roles_changed", "erp.identity.roles_changed"},
		{"inventory", "adjusted", "erp.inventory.adjusted"},
		{"orders", "created", "erp.orders.created"},
	}

	for _, tt := range tests {
		t.Run(tt.domain+"."+tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, Topic(tt.domain, tt.action))
		})
	}
}

func TestNewProducer_CreatesInstance(t *testing.T) {
	// NewProducer requires broker addresses but does not connect immediately.
	// We verify the returned producer is non-nil and can be closed.
	cfg := DefaultProducerConfig([]string{"localhost:19092"})
	p := NewProducer(cfg, nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)

	// Close should succeed even without a real broker.
	err := p.Close()
	assert.NoError(t, err)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

func TestPingBrokers_EmptySlice(t *testing.T) {
	err := PingBrokers(t.Context(), []string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
