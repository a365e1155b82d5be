package migrations

import _ "embed"

//go:embed 20241122030000_create_attempts.sql
var createAttemptsSQL string

func init() {
	Migrations.MustRegister(execSQL(createAttemptsSQL), execSQL(`DROP TABLE IF EXISTS attempt_responses, attempts`))
}
