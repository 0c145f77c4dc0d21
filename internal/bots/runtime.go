package bots

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Run binds h to inv and executes it. A panic inside the handler is
// recovered and returned as an error.
func Run(ctx context.Context, h Handler, inv Invocation) (err error) {
	if err := inv.validate(); err != nil {
		return err
	}
	h.Bind(inv)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("bots.handler.panic",
				"handler", inv.Action.Handler,
				"action", inv.Action.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("bot handler %s panicked: %v", inv.Action.Handler, r)
		}
	}()
	return h.Handle(ctx)
}
