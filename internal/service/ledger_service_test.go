package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/pkg/apperror"
)

func TestReconcileAll_OverwritesDrift(t *testing.T) {
	store := newMemStore()
	alice := store.addUser(models.RoleFreelancer, "alice@example.com")
	bob := store.addUser(models.RoleFreelancer, "bob@example.com")
	store.addUser(models.RoleClient, "client@example.com")

	aliceID, bobID := alice.ID, bob.ID
	store.addJob(models.Job{AssignedFreelancerID: &aliceID, Amount: 1000, Status: "completed", PaymentConfirmed: true})
	store.addJob(models.Job{AssignedFreelancerID: &aliceID, Amount: 33.33, Status: "completed", PaymentConfirmed: true})
	// не оплачен и не завершён - не учитываются
	store.addJob(models.Job{AssignedFreelancerID: &aliceID, Amount: 500, Status: "completed"})
	store.addJob(models.Job{AssignedFreelancerID: &bobID, Amount: 200, Status: "delivered"})

	store.mu.Lock()
	a := store.users[aliceID]
	a.Balance = 9999
	store.users[aliceID] = a
	b := store.users[bobID]
	b.Balance = 42
	store.users[bobID] = b
	store.mu.Unlock()

	svc := NewLedgerService(memUsers{store}, store)
	report, err := svc.ReconcileAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReconcileReport{Processed: 2}, report)
	// (1000 + 33.33) × 0.7 = 723.331
	assert.Equal(t, 723.33, store.user(aliceID).Balance)
	assert.Equal(t, 0.0, store.user(bobID).Balance)
}

func TestRecomputeFreelancer_IsIdempotent(t *testing.T) {
	store := newMemStore()
	dev := store.addUser(models.RoleFreelancer, "dev@example.com")
	devID := dev.ID
	store.addJob(models.Job{AssignedFreelancerID: &devID, Amount: 10.05, Status: "completed", PaymentConfirmed: true})

	svc := NewLedgerService(memUsers{store}, store)
	first, err := svc.RecomputeFreelancer(context.Background(), devID)
	require.NoError(t, err)
	second, err := svc.RecomputeFreelancer(context.Background(), devID)
	require.NoError(t, err)

	assert.Equal(t, 7.04, first)
	assert.Equal(t, first, second)
	assert.Equal(t, first, store.user(devID).Balance)
}

func TestRecomputeFreelancer_LocksUserBeforeReading(t *testing.T) {
	store := newMemStore()
	dev := store.addUser(models.RoleFreelancer, "dev@example.com")

	_, err := NewLedgerService(memUsers{store}, store).RecomputeFreelancer(context.Background(), dev.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock", "read", "write"}, store.txLog)
}

func TestRecomputeFreelancer_UnknownUser(t *testing.T) {
	svc := NewLedgerService(memUsers{newMemStore()}, newMemStore())

	_, err := svc.RecomputeFreelancer(context.Background(), uuid.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestRecomputeFreelancer_RejectsClient(t *testing.T) {
	store := newMemStore()
	client := store.addUser(models.RoleClient, "client@example.com")

	_, err := NewLedgerService(memUsers{store}, store).RecomputeFreelancer(context.Background(), client.ID)
	assert.True(t, apperror.IsValidation(err))
}
