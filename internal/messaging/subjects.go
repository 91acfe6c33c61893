package messaging

// Subject constants follow the pattern {domain}.{action}.{resource}.
const (
	// Published after a generated report is persisted.
	SubjectReportsGenerated = "reports.events.generated"

	// Request/reply: generate a template on behalf of a user.
	SubjectReportsGenerate = "reports.jobs.generate"

	// Published when a scheduled generation fails before producing a report.
	SubjectReportsScheduleFailed = "reports.events.schedule_failed"
)

// QueueReportWorkers is the queue group of report generation workers.
const QueueReportWorkers = "report-workers"
