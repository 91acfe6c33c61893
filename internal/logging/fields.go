package logging

import (
	"log/slog"
	"time"
)

// Common field names.
const (
	FieldService    = "service"
	FieldRequestID  = "request_id"
	FieldUserID     = "user_id"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
	FieldTemplateID = "template_id"
	FieldReportID   = "report_id"
	FieldWidgetID   = "widget_id"
	FieldDataSource = "data_source"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// Error returns an error attribute. A nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

func TemplateID(id string) slog.Attr {
	return slog.String(FieldTemplateID, id)
}

func ReportID(id string) slog.Attr {
	return slog.String(FieldReportID, id)
}

func WidgetID(id string) slog.Attr {
	return slog.String(FieldWidgetID, id)
}

func DataSource(source string) slog.Attr {
	return slog.String(FieldDataSource, source)
}
