package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles workflow and execution persistence in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS nodes (
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	id          TEXT NOT NULL,
	type        TEXT NOT NULL,
	position    JSONB NOT NULL DEFAULT '{}',
	data        JSONB NOT NULL DEFAULT '{}',
	ordinal     INT NOT NULL DEFAULT 0,
	PRIMARY KEY (workflow_id, id)
);

CREATE TABLE IF NOT EXISTS connections (
	workflow_id  TEXT NOT NULL,
	id           TEXT NOT NULL,
	from_node_id TEXT NOT NULL,
	to_node_id   TEXT NOT NULL,
	from_output  TEXT NOT NULL DEFAULT 'main',
	to_input     TEXT NOT NULL DEFAULT 'main',
	PRIMARY KEY (workflow_id, id),
	FOREIGN KEY (workflow_id, from_node_id) REFERENCES nodes(workflow_id, id) ON DELETE CASCADE,
	FOREIGN KEY (workflow_id, to_node_id) REFERENCES nodes(workflow_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS executions (
	id           TEXT PRIMARY KEY,
	workflow_id  TEXT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	output       JSONB,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions(workflow_id);
`

// InitSchema creates the tables if they do not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Seed inserts the sample workflow if it does not already exist.
func (r *Repository) Seed(ctx context.Context) error {
	existing, err := r.LoadWorkflow(ctx, sampleWorkflowID)
	if err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}
	if existing != nil {
		return nil
	}
	wf := sampleWorkflow()
	if err := r.SaveWorkflow(ctx, &wf); err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}
	return nil
}

// LoadWorkflow retrieves a workflow with its nodes and connections.
// Returns nil, nil if not found.
func (r *Repository) LoadWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var wf Workflow
	err := r.db.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM workflows WHERE id = $1
	`, id).Scan(&wf.ID, &wf.Name, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, type, position, data
		FROM nodes WHERE workflow_id = $1 ORDER BY ordinal
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	wf.Nodes = []Node{}
	for rows.Next() {
		var n Node
		var nodeType string
		var positionJSON, dataJSON []byte
		if err := rows.Scan(&n.ID, &nodeType, &positionJSON, &dataJSON); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Type = NodeType(nodeType)
		if err := json.Unmarshal(positionJSON, &n.Position); err != nil {
			return nil, fmt.Errorf("unmarshal node position: %w", err)
		}
		if err := json.Unmarshal(dataJSON, &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshal node data: %w", err)
		}
		n.WorkflowID = id
		wf.Nodes = append(wf.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows nodes: %w", err)
	}

	rows, err = r.db.Query(ctx, `
		SELECT id, from_node_id, to_node_id, from_output, to_input
		FROM connections WHERE workflow_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	wf.Connections = []Connection{}
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.ID, &c.FromNodeID, &c.ToNodeID, &c.FromOutput, &c.ToInput); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		wf.Connections = append(wf.Connections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows connections: %w", err)
	}

	return &wf, nil
}

// SaveWorkflow upserts the workflow and replaces its nodes and connections
// in one transaction. Missing node and connection IDs are generated.
func (r *Repository) SaveWorkflow(ctx context.Context, wf *Workflow) error {
	for i := range wf.Nodes {
		if wf.Nodes[i].ID == "" {
			wf.Nodes[i].ID = uuid.NewString()
		}
		wf.Nodes[i].WorkflowID = wf.ID
	}
	for i := range wf.Connections {
		c := &wf.Connections[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.FromOutput == "" {
			c.FromOutput = "main"
		}
		if c.ToInput == "" {
			c.ToInput = "main"
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO workflows (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
		RETURNING created_at, updated_at
	`, wf.ID, wf.Name).Scan(&wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert workflow: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM connections WHERE workflow_id = $1`, wf.ID); err != nil {
		return fmt.Errorf("delete connections: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM nodes WHERE workflow_id = $1`, wf.ID); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}

	for i, n := range wf.Nodes {
		positionJSON, err := json.Marshal(n.Position)
		if err != nil {
			return fmt.Errorf("marshal node position: %w", err)
		}
		data := n.Data
		if data == nil {
			data = map[string]any{}
		}
		dataJSON, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal node data: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO nodes (workflow_id, id, type, position, data, ordinal)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, wf.ID, n.ID, string(n.Type), positionJSON, dataJSON, i); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}

	for _, c := range wf.Connections {
		if _, err := tx.Exec(ctx, `
			INSERT INTO connections (workflow_id, id, from_node_id, to_node_id, from_output, to_input)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, wf.ID, c.ID, c.FromNodeID, c.ToNodeID, c.FromOutput, c.ToInput); err != nil {
			return fmt.Errorf("insert connection %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CreateExecution records a RUNNING execution. Repeated calls with the same
// id are no-ops.
func (r *Repository) CreateExecution(ctx context.Context, id, workflowID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO executions (id, workflow_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, id, workflowID, string(ExecutionRunning))
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// CompleteExecution marks an execution successful and stores its output.
func (r *Repository) CompleteExecution(ctx context.Context, id string, output json.RawMessage) error {
	return r.finishExecution(ctx, id, ExecutionSuccess, "", output)
}

// FailExecution marks an execution failed with message.
func (r *Repository) FailExecution(ctx context.Context, id, message string) error {
	return r.finishExecution(ctx, id, ExecutionFailed, message, nil)
}

func (r *Repository) finishExecution(ctx context.Context, id string, status ExecutionStatus, message string, output json.RawMessage) error {
	var outputArg any
	if output != nil {
		outputArg = []byte(output)
	}
	_, err := r.db.Exec(ctx, `
		UPDATE executions
		SET status = $2, error = $3, output = $4, completed_at = $5
		WHERE id = $1
	`, id, string(status), message, outputArg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID. Returns nil, nil if not found.
func (r *Repository) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var ex Execution
	var status string
	var output []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, workflow_id, status, error, output, started_at, completed_at
		FROM executions WHERE id = $1
	`, id).Scan(&ex.ID, &ex.WorkflowID, &status, &ex.Error, &output, &ex.StartedAt, &ex.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	ex.Status = ExecutionStatus(status)
	if len(output) > 0 {
		ex.Output = json.RawMessage(output)
	}
	return &ex, nil
}

// InitDB creates the schema and seeds initial data. Called from main on startup.
func InitDB(ctx context.Context, pool *pgxpool.Pool) error {
	repo := NewRepository(pool)
	if err := repo.InitSchema(ctx); err != nil {
		return err
	}
	return repo.Seed(ctx)
}

const sampleWorkflowID = "550e8400-e29b-41d4-a716-446655440000"

func sampleWorkflow() Workflow {
	return Workflow{
		ID:   sampleWorkflowID,
		Name: "Fetch Todo",
		Nodes: []Node{
			{
				ID: "trigger", Type: NodeTypeInitial,
				Position: Position{X: 0, Y: 0},
				Data:     map[string]any{},
			},
			{
				ID: "fetch-todo", Type: NodeTypeHTTPRequest,
				Position: Position{X: 320, Y: 0},
				Data: map[string]any{
					"endpoint":     "https://jsonplaceholder.typicode.com/todos/{{todoId}}",
					"method":       "GET",
					"variableName": "todo",
				},
			},
		},
		Connections: []Connection{
			{ID: "trigger-fetch-todo", FromNodeID: "trigger", ToNodeID: "fetch-todo"},
		},
	}
}
