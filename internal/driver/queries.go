package driver

var indexQueries = []string{
	"CREATE INDEX ON :Document(version);",
	"CREATE INDEX ON :Clause(key);",
	"CREATE INDEX ON :Run(id);",
	"CREATE INDEX ON :Result(id);",
	"CREATE INDEX ON :Audit(result_id);",
}

const (
	SaveDocumentQuery = `
		MERGE (d:Document {version: $version})
		SET d.updated_at = $updated_at
		RETURN d.version AS version
	`

	SaveClausesQuery = `
		MATCH (d:Document {version: $version})
		UNWIND $clauses AS c
		MERGE (n:Clause {key: c.key})
		SET n.id = c.id,
			n.text = c.text,
			n.section_path = c.section_path,
			n.doc_version = $version
		MERGE (d)-[:HAS_CLAUSE]->(n)
		RETURN count(n) AS saved
	`

	SaveRunQuery = `
		MERGE (r:Run {id: $id})
		SET r.old_version = $old_version,
			r.new_version = $new_version,
			r.config_version = $config_version,
			r.started_at = $started_at,
			r.completed_at = $completed_at,
			r.cancelled = $cancelled,
			r.summary = $summary,
			r.rejected = $rejected,
			r.warnings = $warnings
		RETURN r.id AS id
	`

	SaveResultQuery = `
		MATCH (run:Run {id: $run_id})
		MERGE (r:Result {id: $id})
		SET r.change_type = $change_type,
			r.alignment_type = $alignment_type,
			r.score = $score,
			r.risk_level = $risk_level,
			r.confidence = $confidence,
			r.source = $source,
			r.model_version = $model_version,
			r.retries_used = $retries_used,
			r.review_state = $review_state,
			r.human_summary = $human_summary,
			r.changes = $changes,
			r.finalized_at = $finalized_at
		MERGE (run)-[:PRODUCED]->(r)
		WITH r
		UNWIND $clause_keys AS key
		MATCH (c:Clause {key: key})
		MERGE (r)-[:COMPARES]->(c)
		RETURN DISTINCT r.id AS id
	`

	SaveReviewQuery = `
		MATCH (r:Result {id: $id})
		SET r.review_state = $review_state,
			r.reviewed_by = $reviewed_by,
			r.reviewed_at = $reviewed_at
		RETURN r.id AS id
	`

	SaveAuditQuery = `
		CREATE (a:Audit {
			run_id: $run_id,
			result_id: $result_id,
			attempt: $attempt,
			timestamp: $timestamp,
			input_clause_ids: $input_clause_ids,
			prompt_hash: $prompt_hash,
			model_version: $model_version,
			raw_response_hash: $raw_response_hash,
			validation_outcome: $validation_outcome,
			detail: $detail,
			reviewer: $reviewer
		})
		RETURN a.result_id AS result_id
	`
)
