package management

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Task statuses reported back to the server
const (
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskRejected  = "rejected"
)

// Registration announces a node
type Registration struct {
	NodeID       string     `json:"node_id"`
	Hostname     string     `json:"hostname"`
	OSInfo       SystemInfo `json:"os_info"`
	Capabilities []string   `json:"capabilities"`
}

// SystemInfo describes the host
type SystemInfo struct {
	Hostname      string  `json:"hostname"`
	OSName        string  `json:"os_name"`
	OSVersion     string  `json:"os_version"`
	KernelVersion string  `json:"kernel_version"`
	Architecture  string  `json:"architecture"`
	MemoryTotal   uint64  `json:"memory_total"`
	CPUCount      int     `json:"cpu_count"`
	Uptime        float64 `json:"uptime"`
}

// Heartbeat is the periodic liveness report
type Heartbeat struct {
	NodeID       string     `json:"node_id"`
	Timestamp    time.Time  `json:"timestamp"`
	Status       string     `json:"status"`
	SystemInfo   SystemInfo `json:"system_info"`
	ActiveTasks  int        `json:"active_tasks"`
	AgentVersion string     `json:"agent_version"`
}

// Task is a unit of work queued for this node
type Task struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Type    string `json:"type,omitempty"`
}

// TaskResult is the outcome of a task
type TaskResult struct {
	TaskID      string    `json:"task_id"`
	Command     string    `json:"command"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	ExitCode    int       `json:"exit_code"`
	Error       string    `json:"error,omitempty"`
}

// TaskRunner executes tasks received from the server
type TaskRunner interface {
	Run(ctx context.Context, task Task) TaskResult
}

// RejectRunner declines every task; command execution is left to other tooling.
type RejectRunner struct{}

// Run implements TaskRunner
func (RejectRunner) Run(ctx context.Context, task Task) TaskResult {
	now := time.Now().UTC()
	return TaskResult{
		TaskID:      task.ID,
		Command:     task.Command,
		Status:      TaskRejected,
		StartedAt:   now,
		CompletedAt: now,
		ExitCode:    -1,
		Error:       "task execution is not enabled on this node",
	}
}

// Agent drives the node side of the fleet protocol
type Agent struct {
	logger  *zap.Logger
	client  *Client
	runner  TaskRunner
	version string
	active  atomic.Int32
}

// NewAgent creates an agent. A nil runner rejects all tasks.
func NewAgent(logger *zap.Logger, client *Client, runner TaskRunner, version string) *Agent {
	if runner == nil {
		runner = RejectRunner{}
	}
	return &Agent{
		logger:  logger,
		client:  client,
		runner:  runner,
		version: version,
	}
}

// Register announces the node
func (a *Agent) Register(ctx context.Context) error {
	info := CollectSystemInfo(ctx)
	return a.client.Register(ctx, Registration{
		NodeID:       a.client.NodeID(),
		Hostname:     info.Hostname,
		OSInfo:       info,
		Capabilities: []string{"monitoring"},
	})
}

// SendHeartbeat reports liveness
func (a *Agent) SendHeartbeat(ctx context.Context) error {
	return a.client.Heartbeat(ctx, Heartbeat{
		NodeID:       a.client.NodeID(),
		Timestamp:    time.Now().UTC(),
		Status:       "active",
		SystemInfo:   CollectSystemInfo(ctx),
		ActiveTasks:  int(a.active.Load()),
		AgentVersion: a.version,
	})
}

// PollTasks fetches pending tasks, runs each and reports the results. It
// returns the number of tasks handled.
func (a *Agent) PollTasks(ctx context.Context) (int, error) {
	tasks, err := a.client.FetchTasks(ctx)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		a.active.Add(1)
		result := a.runner.Run(ctx, task)
		a.active.Add(-1)

		a.logger.Info("Task handled",
			zap.String("task_id", task.ID),
			zap.String("status", result.Status),
		)
		if err := a.client.ReportTaskResult(ctx, result); err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}

// CollectSystemInfo describes the host. Fields that cannot be read are left empty.
func CollectSystemInfo(ctx context.Context) SystemInfo {
	info := SystemInfo{
		Architecture: runtime.GOARCH,
		CPUCount:     runtime.NumCPU(),
	}
	info.Hostname, _ = os.Hostname()

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.OSName = hi.Platform
		info.OSVersion = hi.PlatformVersion
		info.KernelVersion = hi.KernelVersion
		info.Uptime = float64(hi.Uptime)
		if hi.KernelArch != "" {
			info.Architecture = hi.KernelArch
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
	}
	return info
}
