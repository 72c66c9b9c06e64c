package queue

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Manager handles NATS connection and messaging
type Manager struct {
	conn    *nats.Conn
	url     string
	options []nats.Option
}

// NewManager creates a new NATS manager
func NewManager(natsURL string) (*Manager, error) {
	options := []nats.Option{
		nats.Name("APS Scheduler"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Println("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(natsURL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Printf("Connected to NATS at %s", natsURL)

	return &Manager{
		conn:    conn,
		url:     natsURL,
		options: options,
	}, nil
}

// Close closes the NATS connection
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

// Conn returns the NATS connection
func (m *Manager) Conn() *nats.Conn {
	return m.conn
}

// Publish publishes a message to a subject
func (m *Manager) Publish(subject string, data []byte) error {
	return m.conn.Publish(subject, data)
}

// Subscribe subscribes to a subject with a handler
func (m *Manager) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return m.conn.Subscribe(subject, handler)
}

// QueueSubscribe creates a queue subscriber (load balanced across workers)
func (m *Manager) QueueSubscribe(subject, queue string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return m.conn.QueueSubscribe(subject, queue, handler)
}

// Request sends a request and waits for a response
func (m *Manager) Request(subject string, data []byte, timeout time.Duration) (*nats.Msg, error) {
	return m.conn.Request(subject, data, timeout)
}

// NATS Subject Patterns
//
// A task moves through the pipeline stages entirely inside one worker
// process. The orchestrator uses the progress, complete, failed and
// cancel subjects; SubjectTaskDispatch, SubjectMESDispatch and the two
// queue groups are declared here but nothing in this code base publishes
// to or subscribes on them.

const (
	// SubjectTaskDispatch names a subject for handing a newly-created task
	// to any available worker; unused (see above).
	SubjectTaskDispatch = "aps.task.dispatch"

	// SubjectTaskProgress carries stage-by-stage progress updates.
	// aps.task.progress.{taskID}
	SubjectTaskProgress = "aps.task.progress.%s"

	// SubjectTaskComplete announces a task reached a terminal state.
	// aps.task.complete.{taskID}
	SubjectTaskComplete = "aps.task.complete.%s"

	// SubjectTaskFailed announces a task failed outside the normal
	// diagnostic-as-data path (infrastructure error, panic recovery).
	// aps.task.failed.{taskID}
	SubjectTaskFailed = "aps.task.failed.%s"

	// SubjectTaskCancel is a broadcast request to stop a running task.
	// aps.task.cancel.{taskID}
	SubjectTaskCancel = "aps.task.cancel.%s"

	// SubjectMESDispatch names a subject for queueing finalized work
	// orders for MES delivery; unused, as the orchestrator calls the MES
	// client directly.
	SubjectMESDispatch = "aps.mes.dispatch"

	// QueueGroupTaskWorkers names a queue group for load-balancing task
	// pickup across worker replicas; unused.
	QueueGroupTaskWorkers = "aps-task-workers"

	// QueueGroupMESWorkers names a queue group for load-balancing outbound
	// MES delivery; unused.
	QueueGroupMESWorkers = "aps-mes-workers"
)

// GetTaskProgressSubject returns the progress subject for a task.
func GetTaskProgressSubject(taskID string) string {
	return fmt.Sprintf(SubjectTaskProgress, taskID)
}

// GetTaskCompleteSubject returns the completion subject for a task.
func GetTaskCompleteSubject(taskID string) string {
	return fmt.Sprintf(SubjectTaskComplete, taskID)
}

// GetTaskFailedSubject returns the failure subject for a task.
func GetTaskFailedSubject(taskID string) string {
	return fmt.Sprintf(SubjectTaskFailed, taskID)
}

// GetTaskCancelSubject returns the cancellation subject for a task.
func GetTaskCancelSubject(taskID string) string {
	return fmt.Sprintf(SubjectTaskCancel, taskID)
}
