package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
	"github.com/smallbiznis/utilitybill/internal/audit/repository"
	"github.com/smallbiznis/utilitybill/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAuditService(t *testing.T) (auditdomain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func TestEmitPersistsAuditLog(t *testing.T) {
	svc, _ := setupAuditService(t)
	ctx := context.Background()
	orgID := snowflake.ID(10)

	evt := auditdomain.NewEvent(orgID, auditdomain.ActionTariffVersionCreated, "tariff", snowflake.ID(5), "admin@acme.test", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	evt.Before = map[string]any{"active_until": nil}
	evt.After = map[string]any{"active_from": "2024-01-01"}
	require.NoError(t, svc.Emit(ctx, evt))

	logs, err := svc.List(ctx, auditdomain.ListFilter{OrgID: orgID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, auditdomain.ActionTariffVersionCreated, logs[0].Action)
	assert.Equal(t, string(auditdomain.ActorTypeUser), logs[0].ActorType)
	require.NotNil(t, logs[0].TargetID)
	assert.Equal(t, "5", *logs[0].TargetID)
	assert.Equal(t, evt.ID, logs[0].EventID)
}

func TestEmitRejectsMissingAction(t *testing.T) {
	svc, _ := setupAuditService(t)
	err := svc.Emit(context.Background(), auditdomain.Event{OrgID: 1})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

type recordingEmitter struct {
	events []auditdomain.Event
	err    error
}

func (r *recordingEmitter) Emit(_ context.Context, evt auditdomain.Event) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	failing := &recordingEmitter{err: errors.New("sink down")}
	healthy := &recordingEmitter{}
	fanout := Fanout{failing, nil, healthy}

	err := fanout.Emit(context.Background(), auditdomain.Event{Action: "x"})
	require.Error(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1)
}
