package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-quote/jobs"
)

// TaskEnqueuer submits tasks to the queue.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueInspector reads queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    TaskEnqueuer
	inspector QueueInspector
	closers   []io.Closer
}

// NewJobsCLI initialises the CLI helpers against the queue's Redis.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) (*JobsCLI, error) {
	if redisOpts.Addr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	client := asynq.NewClient(redisOpts)
	inspector := asynq.NewInspector(redisOpts)
	return &JobsCLI{client: client, inspector: inspector, closers: []io.Closer{inspector, client}}, nil
}

// NewJobsCLIWith builds the helpers on top of existing queue handles.
func NewJobsCLIWith(client TaskEnqueuer, inspector QueueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	for _, closer := range c.closers {
		if closeErr := closer.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name with default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskQuotationExpire:
		task, err = jobs.NewQuotationExpireTask(nil)
	case jobs.TaskIdempotencyCleanup:
		task, err = jobs.NewIdempotencyCleanupTask(0)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// InspectQueues reports the state of the named queues, or of every queue
// when names is empty.
func (c *JobsCLI) InspectQueues(ctx context.Context, names ...string) ([]jobs.QueueHealth, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if len(names) == 0 {
		names = jobs.QueueNames()
	}
	out := make([]jobs.QueueHealth, 0, len(names))
	for _, name := range names {
		snap, err := jobs.QueueSnapshot(c.inspector, name)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", name, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// ListScheduled returns up to size scheduled tasks of queue.
func (c *JobsCLI) ListScheduled(ctx context.Context, queue string, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	tasks, err := c.inspector.ListScheduledTasks(queue, asynq.PageSize(size), asynq.Page(1))
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, nil
	}
	return tasks, err
}

// JobsOptions carries the arguments of the jobs command.
type JobsOptions struct {
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
}

// Command runs `jobs trigger <task>`, `jobs queue` or `jobs scheduled` and
// returns the process exit code.
func (c *JobsCLI) Command(ctx context.Context, opts JobsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(opts.Args) == 0 {
		printJobsUsage(opts.Stderr)
		return 2
	}

	fs := flag.NewFlagSet("jobs "+opts.Args[0], flag.ContinueOnError)
	fs.SetOutput(opts.Stderr)
	jsonOutput := fs.Bool("json", false, "print JSON output")
	size := fs.Int("size", 10, "number of scheduled tasks to list")
	queue := fs.String("queue", "", "restrict to one queue")
	if err := fs.Parse(opts.Args[1:]); err != nil {
		return 2
	}

	switch opts.Args[0] {
	case "trigger":
		if fs.NArg() != 1 {
			_, _ = fmt.Fprintln(opts.Stderr, "jobs trigger: task name required")
			return 2
		}
		info, err := c.Trigger(ctx, fs.Arg(0))
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		if *jsonOutput {
			return writeJSON(opts, map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue})
		}
		_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
		return 0
	case "queue":
		var names []string
		if *queue != "" {
			names = []string{*queue}
		}
		stats, err := c.InspectQueues(ctx, names...)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs queue: %v\n", err)
			return 1
		}
		if *jsonOutput {
			return writeJSON(opts, stats)
		}
		tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED\tPAUSED")
		for _, q := range stats {
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%t\n", q.Queue, q.Pending, q.Active, q.Scheduled, q.Retry, q.Archived, q.Paused)
		}
		_ = tw.Flush()
		return 0
	case "scheduled":
		name := *queue
		if name == "" {
			name = jobs.QueueMaintenance
		}
		tasks, err := c.ListScheduled(ctx, name, *size)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		if *jsonOutput {
			out := make([]map[string]string, 0, len(tasks))
			for _, t := range tasks {
				out = append(out, map[string]string{"id": t.ID, "type": t.Type, "next_process_at": t.NextProcessAt.UTC().Format(time.RFC3339)})
			}
			return writeJSON(opts, out)
		}
		tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tTYPE\tNEXT RUN")
		for _, t := range tasks {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format(time.RFC3339))
		}
		_ = tw.Flush()
		return 0
	default:
		printJobsUsage(opts.Stderr)
		return 2
	}
}

func writeJSON(opts JobsOptions, v any) int {
	if err := json.NewEncoder(opts.Stdout).Encode(v); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs: encode json: %v\n", err)
		return 1
	}
	return 0
}

func printJobsUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "usage: odyssey jobs <trigger TASK|queue|scheduled> [--json] [--queue NAME] [--size N]\ntasks: %s, %s\n",
		jobs.TaskQuotationExpire, jobs.TaskIdempotencyCleanup)
}
