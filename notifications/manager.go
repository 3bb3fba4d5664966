// Package notifications raises user-facing alerts, persisted and
// broadcast to any connected dashboard, for system events an operator
// cares about. Like realtime.WebSocketManager it is an Event Bus
// subscriber rather than being pushed to directly: Subscribe wires it
// to risk-reject and breakeven.
package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/northbeam/tickengine/data"
	"github.com/northbeam/tickengine/eventbus"
	"github.com/northbeam/tickengine/models"
	"github.com/northbeam/tickengine/realtime"
)

// Manager handles the lifecycle of system notifications.
type Manager struct {
	store     data.NotificationStore
	wsManager *realtime.WebSocketManager
}

// NewManager creates a new notification manager.
//
// Args:
//   - store: Persistence layer for notifications
//   - wsManager: WebSocket manager for real-time broadcasts (can be nil)
//
// Returns:
//   - *Manager: The new manager instance
func NewManager(store data.NotificationStore, wsManager *realtime.WebSocketManager) *Manager {
	return &Manager{
		store:     store,
		wsManager: wsManager,
	}
}

// Send creates and broadcasts a new notification.
//
// Args:
//   - notifType: Type of notification (info, success, warning, error)
//   - title: Brief summary
//   - message: Detailed content
//   - metadata: Optional key-value context data
//
// Returns:
//   - string: ID of the created notification
//   - error: Any error encountered
func (m *Manager) Send(notifType models.NotificationType, title, message string, metadata map[string]interface{}) (string, error) {
	id := uuid.New().String()

	n := models.Notification{
		ID:        id,
		Type:      notifType,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
		IsRead:    false,
		Metadata:  metadata,
	}

	// Persist
	if err := m.store.SaveNotification(n); err != nil {
		log.Error().Err(err).Msg("Failed to persist notification")
		return "", fmt.Errorf("failed to save: %w", err)
	}

	// Broadcast
	if m.wsManager != nil {
		m.wsManager.Broadcast("notification", n)
	}

	return id, nil
}

// Subscribe wires the manager to the Event Bus: a risk-reject raises a
// warning naming the pending signal's position side, the rejection id
// and the rejection note, a
// breakeven raises an info notification naming the signal that moved to
// breakeven. Partial-profit/partial-loss are deliberately not wired
// here; they are frequent enough in an active backtest to be noise
// rather than something worth surfacing to an operator.
func (m *Manager) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TopicRiskReject, func(event interface{}) {
		reject, ok := event.(models.RiskRejectEvent)
		if !ok {
			return
		}
		symbol := ""
		if reject.PendingSignal != nil {
			symbol = string(reject.PendingSignal.Position) + " signal"
		}
		if _, err := m.Send(models.NotificationWarning, "Signal rejected by risk engine",
			fmt.Sprintf("%s %s: %s", symbol, reject.RejectionID, reject.RejectionNote), nil); err != nil {
			log.Error().Err(err).Msg("notifications: failed to raise risk-reject notification")
		}
	})

	bus.Subscribe(eventbus.TopicBreakeven, func(event interface{}) {
		partial, ok := event.(models.PartialEvent)
		if !ok {
			return
		}
		if _, err := m.Send(models.NotificationInfo, "Stop loss moved to breakeven",
			fmt.Sprintf("signal %s stop loss now %.8f", partial.SignalID, partial.PriceStopLoss), nil); err != nil {
			log.Error().Err(err).Msg("notifications: failed to raise breakeven notification")
		}
	})
}

// GetHistory retrieves recent notifications.
func (m *Manager) GetHistory(limit, offset int) ([]models.Notification, error) {
	return m.store.GetNotifications(limit, offset)
}

// MarkAsRead marks a notification as read.
func (m *Manager) MarkAsRead(id string) error {
	return m.store.MarkAsRead(id)
}

// MarkAllAsRead marks all notifications as read.
func (m *Manager) MarkAllAsRead() error {
	return m.store.MarkAllAsRead()
}

// Helper methods for common types

func (m *Manager) Info(title, message string) {
	m.Send(models.NotificationInfo, title, message, nil)
}

func (m *Manager) Success(title, message string) {
	m.Send(models.NotificationSuccess, title, message, nil)
}

func (m *Manager) Warning(title, message string) {
	m.Send(models.NotificationWarning, title, message, nil)
}

func (m *Manager) Error(title, message string) {
	m.Send(models.NotificationError, title, message, nil)
}
