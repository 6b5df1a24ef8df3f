package postgres

// SQL for the raw layer (arrival-date partitioned batches) and the cleaned
// layer (sessioned events keyed by the natural event key).

const (
	// queryFetchBatch returns one arrival date's batch in ingest order.
	// ingest_seq is the final tie-break for same-timestamp events, so batch
	// order must be stable across re-reads.
	queryFetchBatch = `
		SELECT ingest_seq, user_id, event_id, product_code, occurred_at, payload
		FROM raw_events
		WHERE arrival_date = $1
		ORDER BY ingest_seq ASC
	`

	// queryRetentionFloor reports the earliest arrival date still present.
	// NULL (empty raw layer) scans as the zero time.
	queryRetentionFloor = `SELECT MIN(arrival_date) FROM raw_events`

	// queryFetchLookback returns the persisted cleaned rows for the given
	// partition keys on or after a pdate floor. Keys are pushed down as
	// parallel arrays and joined, so the scan stays bounded by the batch's
	// key set instead of the whole table.
	queryFetchLookback = `
		SELECT s.ingest_seq, s.user_id, s.event_id, s.product_code, s.occurred_at, s.payload
		FROM sessions s
		JOIN unnest($1::text[], $2::text[]) AS k(user_id, product_code)
		  ON s.user_id = k.user_id AND s.product_code = k.product_code
		WHERE s.pdate >= $3
		ORDER BY s.ingest_seq ASC
	`

	// queryUpsertSession replaces a persisted row with its recomputed
	// version, or inserts it. The DO UPDATE guard skips rows whose
	// recomputed content is identical, so a re-run leaves them untouched,
	// updated_at included (idempotence is byte-level).
	queryUpsertSession = `
		INSERT INTO sessions (
			user_id, event_id, product_code, occurred_at, payload, ingest_seq,
			is_user_action, time_diff_ms, is_new_session, session_group_seq,
			session_start_time, session_id, pdate, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id, event_id, product_code, occurred_at)
		DO UPDATE SET
			payload            = EXCLUDED.payload,
			ingest_seq         = EXCLUDED.ingest_seq,
			is_user_action     = EXCLUDED.is_user_action,
			time_diff_ms       = EXCLUDED.time_diff_ms,
			is_new_session     = EXCLUDED.is_new_session,
			session_group_seq  = EXCLUDED.session_group_seq,
			session_start_time = EXCLUDED.session_start_time,
			session_id         = EXCLUDED.session_id,
			pdate              = EXCLUDED.pdate,
			updated_at         = EXCLUDED.updated_at
		WHERE (sessions.payload, sessions.ingest_seq, sessions.is_user_action,
		       sessions.time_diff_ms, sessions.is_new_session, sessions.session_group_seq,
		       sessions.session_start_time, sessions.session_id, sessions.pdate)
		      IS DISTINCT FROM
		      (EXCLUDED.payload, EXCLUDED.ingest_seq, EXCLUDED.is_user_action,
		       EXCLUDED.time_diff_ms, EXCLUDED.is_new_session, EXCLUDED.session_group_seq,
		       EXCLUDED.session_start_time, EXCLUDED.session_id, EXCLUDED.pdate)
	`

	// queryRangeSessions serves the query API: one key's rows in the
	// canonical timeline order.
	queryRangeSessions = `
		SELECT
			ingest_seq, user_id, event_id, product_code, occurred_at, payload,
			is_user_action, time_diff_ms, is_new_session, session_group_seq,
			session_start_time, session_id, pdate
		FROM sessions
		WHERE user_id = $1
		  AND product_code = $2
		  AND occurred_at >= $3
		  AND occurred_at < $4
		ORDER BY occurred_at ASC, event_id ASC, ingest_seq ASC
		LIMIT $5
	`
)
