package repository

const (
	saveJobQuery = `INSERT INTO transcode_jobs (job_id, file_name, target_format, codec, bitrate, resolution, state,
						original_key, transcoded_key, error_kind, error_message, created_at, completed_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
					ON CONFLICT (job_id) DO UPDATE
					SET state = EXCLUDED.state,
					    transcoded_key = EXCLUDED.transcoded_key,
					    error_kind = EXCLUDED.error_kind,
					    error_message = EXCLUDED.error_message,
					    completed_at = EXCLUDED.completed_at`
	getTotalJobsCountQuery = `SELECT COUNT(job_id) FROM transcode_jobs`
	getJobsQuery           = `SELECT job_id, file_name, target_format, codec, bitrate, resolution, state, original_key,
						transcoded_key, error_kind, error_message, created_at, completed_at FROM transcode_jobs
					ORDER BY completed_at DESC OFFSET $1 LIMIT $2`
)
