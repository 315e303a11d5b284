package otpauth

import "context"

// emitAudit hands event to the dispatcher, which stamps it with the engine clock.
func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, event)
}
