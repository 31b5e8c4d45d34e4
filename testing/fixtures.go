package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/coracaovalente/instituto-integration/models"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// ValidUserData returns user data that passes every validation rule
func ValidUserData() models.InstitutoUserData {
	return models.InstitutoUserData{
		Nome:                     "Maria da Silva",
		Email:                    fmt.Sprintf("maria.%d@example.com", rand.Intn(1000000)),
		Telefone:                 "11987654321",
		CPF:                      "52998224725",
		OrigemCadastro:           models.OrigemVisaoItinerante,
		ConsentimentoDataSharing: true,
		CreatedAt:                time.Now().UTC().Format(time.RFC3339),
	}
}

// CreateTestLog inserts a delivery log with the given status
func (tf *TestFixtures) CreateTestLog(status models.DeliveryStatus) (*models.DeliveryLog, error) {
	log := &models.DeliveryLog{
		ID:           uuid.New(),
		UserID:       uuid.NewString(),
		Status:       status,
		Payload:      models.NewUserDataPayload(ValidUserData()),
		AttemptCount: 1,
	}
	if err := tf.DB.DB.Create(log).Error; err != nil {
		return nil, fmt.Errorf("failed to create delivery log: %w", err)
	}
	return log, nil
}

// CreateTestJob inserts a queue job for logID scheduled at scheduledFor
func (tf *TestFixtures) CreateTestJob(logID uuid.UUID, scheduledFor time.Time, attempts, maxAttempts int) (*models.DeliveryJob, error) {
	job := &models.DeliveryJob{
		ID:           uuid.New(),
		LogID:        logID,
		ScheduledFor: scheduledFor.UTC(),
		Attempts:     attempts,
		MaxAttempts:  maxAttempts,
	}
	if err := tf.DB.DB.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create delivery job: %w", err)
	}
	return job, nil
}
