package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// MySQLStore implements Store against a networked MySQL/MariaDB server.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQL opens a MySQL store and runs migrations. dsn is a
// go-sql-driver/mysql DSN, e.g. "user:pass@tcp(host:3306)/dbname?parseTime=true".
func NewMySQL(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			admin_token_hash VARCHAR(128) NOT NULL UNIQUE,
			share_token_hash VARCHAR(128) NOT NULL UNIQUE,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			last_connected_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS agent_tags (
			agent_id VARCHAR(36) NOT NULL,
			tag VARCHAR(255) NOT NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			PRIMARY KEY (agent_id, tag),
			FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS terminal_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			instance_id VARCHAR(36) NOT NULL,
			sequence_number BIGINT NOT NULL,
			output_data LONGBLOB NOT NULL,
			byte_size INT NOT NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			UNIQUE KEY uniq_instance_seq (instance_id, sequence_number),
			KEY idx_instance (instance_id, sequence_number)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS terminal_history_meta (
			instance_id VARCHAR(36) PRIMARY KEY,
			total_bytes BIGINT NOT NULL DEFAULT 0,
			next_sequence BIGINT NOT NULL DEFAULT 0,
			buffer_size_kb INT NOT NULL DEFAULT 256,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			timestamp DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			event_type VARCHAR(64) NOT NULL,
			session_id VARCHAR(36) NOT NULL DEFAULT '',
			user_role VARCHAR(32) NOT NULL DEFAULT '',
			agent_id VARCHAR(36),
			instance_id VARCHAR(36),
			target_id VARCHAR(36),
			client_ip VARCHAR(64) NOT NULL DEFAULT '',
			success TINYINT(1) NOT NULL DEFAULT 0,
			details TEXT,
			KEY idx_event_type (event_type),
			KEY idx_timestamp (timestamp)
		) ENGINE=InnoDB`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed (%s): %w", m, err)
		}
	}
	return nil
}

func (s *MySQLStore) Close() error { return s.db.Close() }

func (s *MySQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *MySQLStore) UpsertAgentByTokenHashes(ctx context.Context, name, adminHash, shareHash string) (*Agent, error) {
	if existing, err := s.GetAgentByAdminHash(adminHash); err == nil && existing != nil {
		return existing, nil
	}
	if existing, err := s.GetAgentByShareHash(shareHash); err == nil && existing != nil {
		return existing, nil
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, admin_token_hash, share_token_hash, created_at, last_connected_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, adminHash, shareHash, now, now)
	if err != nil {
		if existing, lookupErr := s.GetAgentByAdminHash(adminHash); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("insert agent: %w", err)
	}

	return &Agent{ID: id, Name: name, AdminTokenHash: adminHash, ShareTokenHash: shareHash, CreatedAt: now, LastConnectedAt: now}, nil
}

func scanAgentRow(row *sql.Row) (*Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.AdminTokenHash, &a.ShareTokenHash, &a.CreatedAt, &a.LastConnectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *MySQLStore) GetAgentByAdminHash(adminHash string) (*Agent, error) {
	row := s.db.QueryRow(`SELECT id, name, admin_token_hash, share_token_hash, created_at, last_connected_at FROM agents WHERE admin_token_hash = ?`, adminHash)
	return scanAgentRow(row)
}

func (s *MySQLStore) GetAgentByShareHash(shareHash string) (*Agent, error) {
	row := s.db.QueryRow(`SELECT id, name, admin_token_hash, share_token_hash, created_at, last_connected_at FROM agents WHERE share_token_hash = ?`, shareHash)
	return scanAgentRow(row)
}

func (s *MySQLStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, admin_token_hash, share_token_hash, created_at, last_connected_at FROM agents WHERE id = ?`, id)
	a, err := scanAgentRow(row)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *MySQLStore) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET last_connected_at = ? WHERE id = ?`, at, id)
	return err
}

func (s *MySQLStore) DeleteAgent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	return err
}

func (s *MySQLStore) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, admin_token_hash, share_token_hash, created_at, last_connected_at FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.AdminTokenHash, &a.ShareTokenHash, &a.CreatedAt, &a.LastConnectedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *MySQLStore) AddTag(ctx context.Context, agentID, tag string) error {
	_, err := s.db.ExecContext(ctx, `INSERT IGNORE INTO agent_tags (agent_id, tag, created_at) VALUES (?, ?, ?)`, agentID, tag, time.Now().UTC())
	return err
}

func (s *MySQLStore) RemoveTag(ctx context.Context, agentID, tag string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agent_tags WHERE agent_id = ? AND tag = ?`, agentID, tag)
	return err
}

func (s *MySQLStore) ListTags(ctx context.Context, agentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM agent_tags WHERE agent_id = ? ORDER BY tag`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

func (s *MySQLStore) ListAllTags(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent_id, tag FROM agent_tags ORDER BY agent_id, tag`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var agentID, tag string
		if err := rows.Scan(&agentID, &tag); err != nil {
			return nil, err
		}
		out[agentID] = append(out[agentID], tag)
	}
	return out, rows.Err()
}

func (s *MySQLStore) AppendHistoryChunk(ctx context.Context, instanceID string, seq int64, data []byte, bufferCapBytes int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	size := len(data)
	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO terminal_history (instance_id, sequence_number, output_data, byte_size, created_at) VALUES (?, ?, ?, ?, ?)`,
		instanceID, seq, data, size, now); err != nil {
		return fmt.Errorf("insert history chunk: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO terminal_history_meta (instance_id, total_bytes, next_sequence, buffer_size_kb, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE total_bytes = total_bytes + VALUES(total_bytes),
		   next_sequence = VALUES(next_sequence), updated_at = VALUES(updated_at)`,
		instanceID, size, seq+1, bufferCapBytes/1024, now, now); err != nil {
		return fmt.Errorf("upsert history meta: %w", err)
	}

	var totalBytes int
	if err := tx.QueryRowContext(ctx, `SELECT total_bytes FROM terminal_history_meta WHERE instance_id = ?`, instanceID).Scan(&totalBytes); err != nil {
		return err
	}

	for totalBytes > bufferCapBytes {
		var oldestSeq int64
		var oldestSize int
		err := tx.QueryRowContext(ctx,
			`SELECT sequence_number, byte_size FROM terminal_history WHERE instance_id = ? ORDER BY sequence_number ASC LIMIT 1`,
			instanceID).Scan(&oldestSeq, &oldestSize)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return err
		}
		// Never evict the chunk just inserted, even if it alone exceeds the
		// cap: per spec §8, an oversized chunk is kept rather than silently
		// dropped once there is nothing older left to trim.
		if oldestSeq == seq {
			break
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM terminal_history WHERE instance_id = ? AND sequence_number = ?`, instanceID, oldestSeq); err != nil {
			return err
		}
		totalBytes -= oldestSize
		if _, err := tx.ExecContext(ctx, `UPDATE terminal_history_meta SET total_bytes = ? WHERE instance_id = ?`, totalBytes, instanceID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *MySQLStore) LoadHistory(ctx context.Context, instanceID string) ([]HistoryChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT instance_id, sequence_number, output_data, byte_size, created_at FROM terminal_history WHERE instance_id = ? ORDER BY sequence_number ASC`,
		instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryChunk
	for rows.Next() {
		var c HistoryChunk
		if err := rows.Scan(&c.InstanceID, &c.Sequence, &c.Data, &c.ByteSize, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *MySQLStore) NextSequence(ctx context.Context, instanceID string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `SELECT next_sequence FROM terminal_history_meta WHERE instance_id = ?`, instanceID).Scan(&next)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return next, err
}

func (s *MySQLStore) DeleteHistoryOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM terminal_history WHERE created_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *MySQLStore) DeleteHistoryForInstance(ctx context.Context, instanceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM terminal_history WHERE instance_id = ?`, instanceID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM terminal_history_meta WHERE instance_id = ?`, instanceID)
	return err
}

func (s *MySQLStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (timestamp, event_type, session_id, user_role, agent_id, instance_id, target_id, client_ip, success, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp, e.EventType, e.SessionID, e.Role, nullableStr(e.AgentID), nullableStr(e.InstanceID), nullableStr(e.TargetID), e.ClientIP, e.Success, nullableStr(e.Detail))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		e.ID = id
	}
	return nil
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *MySQLStore) QueryAudit(ctx context.Context, limit, offset int, kind string) ([]AuditEntry, int, error) {
	where := ""
	args := []any{}
	if kind != "" {
		where = "WHERE event_type = ?"
		args = append(args, kind)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM audit_logs %s`, where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT id, timestamp, event_type, session_id, user_role,
		COALESCE(agent_id, ''), COALESCE(instance_id, ''), COALESCE(target_id, ''),
		client_ip, success, COALESCE(details, '')
		FROM audit_logs %s ORDER BY id DESC LIMIT ? OFFSET ?`, where)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.SessionID, &e.Role,
			&e.AgentID, &e.InstanceID, &e.TargetID, &e.ClientIP, &e.Success, &e.Detail); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (s *MySQLStore) DeleteAuditOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
