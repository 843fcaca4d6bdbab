// Package notifications delivers pipeline events to ntfy.
//
// When no topic is configured the service is a no-op, so workflow code can
// call it unconditionally. Published and failure messages can be switched off
// individually in the [notifications] config section.
package notifications
