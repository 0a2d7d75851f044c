package storage

// schemaStatements create the manuals table. The DDL is the common subset
// of PostgreSQL and SQLite; go-sqlite3 maps DATE/TIMESTAMP columns to
// time.Time on scan.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS manuals (
	id                BIGINT PRIMARY KEY,
	detail_path       TEXT NOT NULL,
	detail_url        TEXT NOT NULL,
	pdf_url           TEXT NOT NULL UNIQUE,
	pdf_local_path    TEXT,
	name_native       TEXT,
	name_foreign      TEXT,
	grade             TEXT,
	release_date      DATE,
	release_date_text TEXT NOT NULL DEFAULT '',
	image_url         TEXT,
	storage_bucket    TEXT,
	storage_path      TEXT,
	public_url        TEXT,
	storage_size      BIGINT,
	uploaded_at       TIMESTAMP,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_manuals_grade ON manuals (grade)`,
	`CREATE INDEX IF NOT EXISTS idx_manuals_missing ON manuals (pdf_local_path)`,
}

const manualColumns = `id, detail_path, detail_url, pdf_url, pdf_local_path, name_native,
	name_foreign, grade, release_date, release_date_text, image_url, storage_bucket,
	storage_path, public_url, storage_size, uploaded_at, created_at, updated_at`

// upsertSQL never names pdf_local_path or the upload columns, so a re-crawl
// cannot clobber download or publication state.
const upsertSQL = `INSERT INTO manuals (
	id, detail_path, detail_url, pdf_url, name_native, name_foreign, grade,
	release_date, release_date_text, image_url, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	detail_path = excluded.detail_path,
	detail_url = excluded.detail_url,
	pdf_url = excluded.pdf_url,
	name_native = excluded.name_native,
	name_foreign = excluded.name_foreign,
	grade = excluded.grade,
	release_date = excluded.release_date,
	release_date_text = excluded.release_date_text,
	image_url = excluded.image_url,
	updated_at = excluded.updated_at`

const setLocalPathSQL = `UPDATE manuals SET pdf_local_path = ?, updated_at = ? WHERE id = ?`

const setUploadSQL = `UPDATE manuals SET storage_bucket = ?, storage_path = ?, public_url = ?,
	storage_size = ?, uploaded_at = ?, updated_at = ? WHERE id = ?`
