package ctxutil

import "context"

type traceDataKey struct{}

// TraceData identifies the request a context belongs to. LessonID is set when
// the route addresses a single lesson.
type TraceData struct {
	TraceID   string
	RequestID string
	LessonID  string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// LogFields returns the non-empty trace and request ids as logger key/value
// pairs. LessonID is left to callers, which usually log it already.
func LogFields(ctx context.Context) []any {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	var out []any
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	return out
}

// Carry copies src's trace data onto dst, so work detached from a request
// still logs under the request's ids while following dst's cancellation.
func Carry(dst, src context.Context) context.Context {
	td := GetTraceData(src)
	if td == nil {
		return dst
	}
	cp := *td
	return WithTraceData(dst, &cp)
}
