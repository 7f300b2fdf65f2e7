package audit

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := NewLogger(zap.New(core))

	userID := uuid.New()
	ctx := auth.ContextWithClaims(context.Background(), &auth.Claims{UserID: userID, Username: "priya"})
	a.Log(ctx, Entry{Action: ActionCreate, Entity: EntityLoan, EntityID: "loan-1", Details: "Created loan", IPAddress: "10.0.0.1"})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "CREATE", fields["action"])
	assert.Equal(t, "Loan", fields["entity"])
	assert.Equal(t, userID.String(), fields["user_id"])
	assert.Equal(t, "priya", fields["username"])
	assert.Equal(t, "loan-1", fields["entity_id"])
	assert.Equal(t, "10.0.0.1", fields["ip"])
}

func TestLogWithoutOperator(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	NewLogger(zap.New(core)).Log(context.Background(), Entry{Action: ActionUpdate, Entity: EntityPayment})

	require.Equal(t, 1, logs.Len())
	_, ok := logs.All()[0].ContextMap()["user_id"]
	assert.False(t, ok)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "192.0.2.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "192.168.1.9")
	assert.Equal(t, "192.168.1.9", ClientIP(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(r))
}
