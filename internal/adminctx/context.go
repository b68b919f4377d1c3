package adminctx

import "context"

type contextKey string

const (
	keyAdminEmail contextKey = "curator_admin_email"
	keyLocale     contextKey = "curator_locale"
	keyRequestID  contextKey = "curator_request_id"
)

func WithAdminEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, keyAdminEmail, email)
}

func GetAdminEmail(ctx context.Context) string {
	if v, ok := ctx.Value(keyAdminEmail).(string); ok {
		return v
	}
	return ""
}

func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, keyLocale, locale)
}

func GetLocale(ctx context.Context) string {
	if v, ok := ctx.Value(keyLocale).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
