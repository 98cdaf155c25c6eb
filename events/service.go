package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/weblab-class/pomo-dungeon/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types written by the server.
const (
	TypeUserOnline    = "user-online"
	TypeUserOffline   = "user-offline"
	TypeFriendRequest = "friend-request"
	TypeFriendAccept  = "friend-accept"
	TypeFriendReject  = "friend-reject"
	TypeFriendRemove  = "friend-remove"
	TypeQuestComplete = "quest-complete"
)

// Service writes event log records asynchronously in batches so request
// handlers never wait on the event table.
type Service struct {
	db     *gorm.DB
	ch     chan *model.Event
	stopCh chan struct{}
	wg     sync.WaitGroup
	flush  time.Duration
	logger *zap.Logger
}

// New creates an event Service and starts its background worker.
func New(db *gorm.DB, flushInterval time.Duration, logger *zap.Logger) *Service {
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	svc := &Service{
		db:     db,
		ch:     make(chan *model.Event, 1024),
		stopCh: make(chan struct{}),
		flush:  flushInterval,
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues one event for async DB write. Drops when the queue is full.
func (svc *Service) Log(userID, eventType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	record := &model.Event{
		UserID:    userID,
		EventType: eventType,
		Payload:   datatypes.JSON(data),
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("event channel full, dropping entry",
			zap.String("event_type", eventType))
	}
}

// Prune deletes events older than the retention window.
func (svc *Service) Prune(retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	res := svc.db.Where("created_at < ?", cutoff).Delete(&model.Event{})
	if res.Error != nil {
		svc.logger.Error("event prune failed", zap.Error(res.Error))
		return
	}
	if res.RowsAffected > 0 {
		svc.logger.Info("pruned events", zap.Int64("count", res.RowsAffected))
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.flush)
	defer ticker.Stop()

	batch := make([]*model.Event, 0, 100)

	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("event batch write failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flushBatch()
			}
		case <-ticker.C:
			flushBatch()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flushBatch()
					return
				}
			}
		}
	}
}
