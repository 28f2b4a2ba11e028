// internal/service/operation_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"calibrator-service/internal/fluke5440b"
	"calibrator-service/internal/utils"
)

// OperationType names the long-running instrument operations the service can
// launch.
type OperationType string

const (
	OperationSelftestDigital OperationType = "SELFTEST_DIGITAL"
	OperationSelftestAnalog  OperationType = "SELFTEST_ANALOG"
	OperationSelftestHV      OperationType = "SELFTEST_HV"
	OperationSelftestAll     OperationType = "SELFTEST_ALL"
	OperationACal            OperationType = "ACAL"
)

// IsValid reports whether the operation type is known.
func (t OperationType) IsValid() bool {
	switch t {
	case OperationSelftestDigital, OperationSelftestAnalog, OperationSelftestHV,
		OperationSelftestAll, OperationACal:
		return true
	}
	return false
}

// OperationStatus is the lifecycle state of a launched operation.
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "PENDING"
	OperationStatusRunning   OperationStatus = "RUNNING"
	OperationStatusSuccess   OperationStatus = "SUCCESS"
	OperationStatusFailed    OperationStatus = "FAILED"
	OperationStatusTimedOut  OperationStatus = "TIMED_OUT"
	OperationStatusCancelled OperationStatus = "CANCELLED"
)

// Operation is the tracked record of one long-running instrument job.
type Operation struct {
	ID           uuid.UUID       `json:"id"`
	Type         OperationType   `json:"type"`
	Status       OperationStatus `json:"status"`
	DeviceState  string          `json:"device_state,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// OperationService launches and tracks long-running calibrator operations.
// The instrument hardware is blocked while one runs, so only a single
// operation may be active at a time.
type OperationService struct {
	device *fluke5440b.Device
	logger *zap.Logger
	events *EventBus

	mu         sync.RWMutex
	operations map[uuid.UUID]*Operation
	activeID   uuid.UUID
	active     bool
	cancel     context.CancelFunc
}

// NewOperationService creates the service and hooks the driver's state
// listener so poll progress reaches the event bus.
func NewOperationService(device *fluke5440b.Device, events *EventBus, logger *zap.Logger) *OperationService {
	s := &OperationService{
		device:     device,
		logger:     logger.With(zap.String("component", "operation-service")),
		events:     events,
		operations: make(map[uuid.UUID]*Operation),
	}
	device.SetStateListener(s.onDeviceState)
	return s
}

// Start launches a long operation in the background and returns its record
// immediately. It fails if another operation is still running.
func (s *OperationService) Start(opType OperationType) (*Operation, error) {
	run, err := s.runner(opType)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.active {
		activeID := s.activeID
		s.mu.Unlock()
		return nil, fmt.Errorf("operation %s is still running, the instrument is busy", activeID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	op := &Operation{
		ID:        uuid.New(),
		Type:      opType,
		Status:    OperationStatusRunning,
		StartedAt: time.Now(),
	}
	s.operations[op.ID] = op
	s.activeID = op.ID
	s.active = true
	s.cancel = cancel
	s.mu.Unlock()

	opLogger := utils.NewOperationLogger(s.logger, string(opType), op.ID.String())
	opLogger.Start()

	go func() {
		defer cancel()
		err := run(ctx)
		s.finish(op.ID, err, opLogger)
	}()

	return s.snapshot(op.ID), nil
}

// Cancel abandons the wait for a running operation. The instrument continues
// its in-progress routine; only the polling stops.
func (s *OperationService) Cancel(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.activeID != id {
		return fmt.Errorf("operation %s is not running", id)
	}
	s.cancel()
	return nil
}

// Get returns the record of an operation.
func (s *OperationService) Get(id uuid.UUID) (*Operation, error) {
	op := s.snapshot(id)
	if op == nil {
		return nil, fmt.Errorf("operation %s not found", id)
	}
	return op, nil
}

// List returns all operation records of this process.
func (s *OperationService) List() []*Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := make([]*Operation, 0, len(s.operations))
	for id := range s.operations {
		ops = append(ops, s.snapshotLocked(id))
	}
	return ops
}

func (s *OperationService) runner(opType OperationType) (func(context.Context) error, error) {
	switch opType {
	case OperationSelftestDigital:
		return s.device.SelftestDigital, nil
	case OperationSelftestAnalog:
		return s.device.SelftestAnalog, nil
	case OperationSelftestHV:
		return s.device.SelftestHV, nil
	case OperationSelftestAll:
		return s.device.SelftestAll, nil
	case OperationACal:
		return s.device.ACal, nil
	default:
		return nil, fmt.Errorf("unknown operation type: %s", opType)
	}
}

func (s *OperationService) finish(id uuid.UUID, err error, opLogger *utils.OperationLogger) {
	s.mu.Lock()

	op := s.operations[id]
	completedAt := time.Now()
	op.CompletedAt = &completedAt
	s.active = false

	switch {
	case err == nil:
		op.Status = OperationStatusSuccess
	case errors.Is(err, context.Canceled):
		op.Status = OperationStatusCancelled
		op.ErrorMessage = "wait abandoned; the instrument continues on its own"
	case errors.Is(err, fluke5440b.ErrTimeout):
		op.Status = OperationStatusTimedOut
		op.ErrorMessage = err.Error()
	default:
		op.Status = OperationStatusFailed
		op.ErrorMessage = err.Error()
	}
	snapshot := *op
	s.mu.Unlock()

	if err == nil {
		opLogger.Success()
	} else {
		opLogger.Error(err)
	}
	s.events.Publish(StateEvent{
		OperationID: snapshot.ID,
		Status:      snapshot.Status,
		DeviceState: snapshot.DeviceState,
		Timestamp:   completedAt,
	})
}

// onDeviceState records poll progress on the active operation and broadcasts
// it to subscribers.
func (s *OperationService) onDeviceState(state fluke5440b.DeviceState) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	op := s.operations[s.activeID]
	op.DeviceState = state.String()
	snapshot := *op
	s.mu.Unlock()

	s.events.Publish(StateEvent{
		OperationID: snapshot.ID,
		Status:      snapshot.Status,
		DeviceState: snapshot.DeviceState,
		Timestamp:   time.Now(),
	})
}

func (s *OperationService) snapshot(id uuid.UUID) *Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(id)
}

func (s *OperationService) snapshotLocked(id uuid.UUID) *Operation {
	op, ok := s.operations[id]
	if !ok {
		return nil
	}
	copied := *op
	return &copied
}
