// Command dbctl is a low-level maintenance helper an in-flight agent's
// own process can shell out to, independent of the coordinator's Go
// process: report a heartbeat, check whether the coordinator has
// cancelled it, or dump its registry row. It talks directly to the
// agents table internal/registry maintains, via the teacher's own
// mattn/go-sqlite3 driver rather than the coordinator's modernc.org/sqlite
// handle (see DESIGN.md's Open Question decision on the driver split).
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "data/coordinator.db", "Path to the coordinator's SQLite database")
	action := flag.String("action", "", "Action to perform: heartbeat, check-shutdown, get-agent")
	agentID := flag.String("agent", "", "Agent ID")
	jsonOutput := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	if *action == "" || *agentID == "" {
		fmt.Fprintf(os.Stderr, "Usage: dbctl -db <path> -action <action> -agent <id> [-json]\n")
		fmt.Fprintf(os.Stderr, "Actions: heartbeat, check-shutdown, get-agent\n")
		os.Exit(1)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", *dbPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch *action {
	case "heartbeat":
		if err := updateHeartbeat(db, *agentID); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to update heartbeat: %v\n", err)
			os.Exit(1)
		}
		if !*jsonOutput {
			fmt.Printf("Heartbeat updated for %s\n", *agentID)
		} else {
			json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
				"success":   true,
				"agent_id":  *agentID,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		}

	case "check-shutdown":
		shutdown, reason, err := checkShutdown(db, *agentID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to check shutdown: %v\n", err)
			os.Exit(1)
		}

		if *jsonOutput {
			json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
				"shutdown": shutdown,
				"reason":   reason,
			})
		} else {
			if shutdown {
				fmt.Printf("1\n%s\n", reason)
			} else {
				fmt.Printf("0\n")
			}
		}

	case "get-agent":
		agent, err := getAgent(db, *agentID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get agent: %v\n", err)
			os.Exit(1)
		}
		json.NewEncoder(os.Stdout).Encode(agent)

	default:
		fmt.Fprintf(os.Stderr, "Unknown action: %s\n", *action)
		os.Exit(1)
	}
}

// updateHeartbeat stamps last_heartbeat on a running agent row.
func updateHeartbeat(db *sql.DB, agentID string) error {
	result, err := db.Exec(
		`UPDATE agents SET last_heartbeat = ? WHERE agent_id = ? AND state = 'running'`,
		time.Now().UTC().Format(time.RFC3339), agentID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("agent not found or not running: %s", agentID)
	}
	return nil
}

// checkShutdown reports whether the coordinator has moved agentID to a
// terminal, non-completed state (cancelled, timed out, or failed) — the
// agent's own process should treat any of these as "stop now".
func checkShutdown(db *sql.DB, agentID string) (bool, string, error) {
	var state string
	var errMsg sql.NullString

	err := db.QueryRow(`SELECT state, error FROM agents WHERE agent_id = ?`, agentID).Scan(&state, &errMsg)
	if err != nil {
		return false, "", err
	}

	switch state {
	case "cancelled":
		return true, "cancelled by coordinator", nil
	case "timeout":
		return true, "timed out", nil
	case "failed":
		reason := "failed"
		if errMsg.Valid && errMsg.String != "" {
			reason = errMsg.String
		}
		return true, reason, nil
	default:
		return false, "", nil
	}
}

// AgentInfo is the JSON shape get-agent prints — the agents table's
// columns, one-to-one with internal/registry.Registry's own schema.
type AgentInfo struct {
	AgentID       string    `json:"agent_id"`
	TaskID        string    `json:"task_id"`
	Subtask       string    `json:"subtask"`
	AgentType     string    `json:"agent_type"`
	ModelTier     string    `json:"model_tier"`
	State         string    `json:"state"`
	CreatedAt     time.Time `json:"created_at"`
	LastHeartbeat *string   `json:"last_heartbeat"`
	Progress      float64   `json:"progress"`
	Error         *string   `json:"error,omitempty"`
}

func getAgent(db *sql.DB, agentID string) (*AgentInfo, error) {
	var agent AgentInfo
	var lastHeartbeat, errMsg sql.NullString

	err := db.QueryRow(
		`SELECT agent_id, task_id, subtask, agent_type, model_tier, state, created_at, last_heartbeat, progress, error
		 FROM agents WHERE agent_id = ?`,
		agentID,
	).Scan(
		&agent.AgentID, &agent.TaskID, &agent.Subtask, &agent.AgentType, &agent.ModelTier,
		&agent.State, &agent.CreatedAt, &lastHeartbeat, &agent.Progress, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	if lastHeartbeat.Valid {
		agent.LastHeartbeat = &lastHeartbeat.String
	}
	if errMsg.Valid {
		agent.Error = &errMsg.String
	}

	return &agent, nil
}
