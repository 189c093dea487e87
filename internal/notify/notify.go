// Package notify shows desktop notifications through the freedesktop
// notification service.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	busName       = "org.freedesktop.Notifications"
	objectPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
	interfaceName = "org.freedesktop.Notifications"

	// defaultAction is invoked when the notification body is clicked
	defaultAction = "default"
)

// Action is a button shown on a notification
type Action struct {
	Label    string
	Callback func()
}

// Notification describes a notification to show
type Notification struct {
	Title       string
	Body        string
	Icon        string
	Actions     []Action
	OnActivated func()
}

// LogNotifier only logs notifications. It is used when no notification
// service is reachable.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier writing to the logger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify logs the notification
func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	labels := make([]string, 0, len(notification.Actions))
	for _, action := range notification.Actions {
		labels = append(labels, action.Label)
	}
	n.logger.Info("Notification",
		zap.String("title", notification.Title),
		zap.String("body", notification.Body),
		zap.Strings("actions", labels))
	return nil
}

// DBusNotifier sends notifications on the session bus and dispatches their
// actions when the user clicks them
type DBusNotifier struct {
	conn    *dbus.Conn
	appName string
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[uint32]Notification

	signals chan *dbus.Signal
	done    chan struct{}
	once    sync.Once
}

// NewDBusNotifier subscribes to the notification signals on conn
func NewDBusNotifier(conn *dbus.Conn, appName string, logger *zap.Logger) (*DBusNotifier, error) {
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface(interfaceName),
	); err != nil {
		return nil, fmt.Errorf("failed to watch notification signals: %w", err)
	}

	n := newDBusNotifier(conn, appName, logger)
	conn.Signal(n.signals)
	go n.dispatch()
	return n, nil
}

func newDBusNotifier(conn *dbus.Conn, appName string, logger *zap.Logger) *DBusNotifier {
	return &DBusNotifier{
		conn:    conn,
		appName: appName,
		logger:  logger.Named("notify"),
		pending: make(map[uint32]Notification),
		signals: make(chan *dbus.Signal, 16),
		done:    make(chan struct{}),
	}
}

// Notify shows the notification
func (n *DBusNotifier) Notify(ctx context.Context, notification Notification) error {
	obj := n.conn.Object(busName, objectPath)
	call := obj.CallWithContext(ctx, interfaceName+".Notify", 0,
		n.appName,
		uint32(0),
		notification.Icon,
		notification.Title,
		notification.Body,
		actionList(notification),
		map[string]dbus.Variant{},
		int32(-1),
	)
	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("failed to read notification id: %w", err)
	}

	n.mu.Lock()
	n.pending[id] = notification
	n.mu.Unlock()

	n.logger.Debug("Notification sent",
		zap.Uint32("id", id),
		zap.String("title", notification.Title))
	return nil
}

// Close stops dispatching actions
func (n *DBusNotifier) Close() {
	n.once.Do(func() {
		if n.conn != nil {
			n.conn.RemoveSignal(n.signals)
		}
		close(n.done)
	})
}

func (n *DBusNotifier) dispatch() {
	for {
		select {
		case sig, ok := <-n.signals:
			if !ok {
				return
			}
			n.handleSignal(sig)
		case <-n.done:
			return
		}
	}
}

func (n *DBusNotifier) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case interfaceName + ".ActionInvoked":
		if len(sig.Body) != 2 {
			return
		}
		id, ok := sig.Body[0].(uint32)
		if !ok {
			return
		}
		key, ok := sig.Body[1].(string)
		if !ok {
			return
		}

		n.mu.Lock()
		notification, found := n.pending[id]
		n.mu.Unlock()
		if !found {
			return
		}

		if callback := lookupAction(notification, key); callback != nil {
			n.logger.Debug("Notification action invoked",
				zap.Uint32("id", id),
				zap.String("action", key))
			callback()
		}

	case interfaceName + ".NotificationClosed":
		if len(sig.Body) < 1 {
			return
		}
		if id, ok := sig.Body[0].(uint32); ok {
			n.mu.Lock()
			delete(n.pending, id)
			n.mu.Unlock()
		}
	}
}

// actionList flattens the actions into the key/label pairs of the protocol
func actionList(notification Notification) []string {
	actions := make([]string, 0, 2*len(notification.Actions)+2)
	if notification.OnActivated != nil {
		actions = append(actions, defaultAction, "")
	}
	for i, action := range notification.Actions {
		actions = append(actions, strconv.Itoa(i), action.Label)
	}
	return actions
}

func lookupAction(notification Notification, key string) func() {
	if key == defaultAction {
		return notification.OnActivated
	}
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(notification.Actions) {
		return nil
	}
	return notification.Actions[i].Callback
}
