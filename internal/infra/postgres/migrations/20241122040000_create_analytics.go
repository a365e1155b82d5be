package migrations

import _ "embed"

//go:embed 20241122040000_create_analytics.sql
var createAnalyticsSQL string

func init() {
	Migrations.MustRegister(execSQL(createAnalyticsSQL), execSQL(`DROP TABLE IF EXISTS analytics_folds, performance_analytics`))
}
