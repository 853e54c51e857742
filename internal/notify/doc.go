// Package notify implements the notification scheduler.
//
// Callers hand a Request to a Service (directly through ShowNotification or
// through the typed ShowInfo/ShowWarning/ShowError helpers). The Service keeps
// a bounded priority queue and runs at most one drain loop at a time, which
// forwards requests to a display.Adapter one by one.
//
// # Ordering
//
// Requests are ordered by Priority only (high, normal, low) and stay FIFO
// within a priority class. When the queue is at capacity every low-priority
// entry is evicted before the new one is inserted; if that does not free
// room the queue temporarily grows past capacity instead of dropping
// normal/high requests.
//
// # Throttling
//
// Non-high requests wait until Cooldown has elapsed since the previous
// delivery finished. High-priority requests skip the wait. The wait is the
// only suspension point of the drain loop and never blocks enqueuers.
//
// # Responses
//
// Every ShowNotification call gets the response of its own request: the
// action label the user chose, "" when dismissed, or an error (ErrEvicted,
// ErrCleared, ErrDisposed, or a wrapped ErrDeliveryFailed). Adapter failures
// are reported to that caller only; the drain loop moves on to the next
// request. There is no retry.
//
// # Progress and status line
//
// ShowProgress and ShowStatusBarMessage bypass the queue and go straight to
// the adapter. Progress is a long-lived operation rather than a point-in-time
// event, and status text replaces itself, so neither is subject to ordering
// or cooldown.
package notify
