// Package event routes inbound Slack notifications to workflows and runs
// them under a uniform lifecycle.
//
// Dispatch is two-level: the payload's top-level type selects a kind handler
// (app_mention, reaction_added), the kind handler infers a command from the
// payload (mention text's first word, or the reaction name itself), and the
// command selects a concrete workflow. The dispatcher owns the shared
// lifecycle: field extraction and validation, execution, and acknowledgment
// via reactions on the source message.
//
// Failures fall into three kinds, which drive acknowledgment and retry (see
// errors.go): structurally incomplete input is dropped silently, expected
// business-rule violations are marked with the error reaction and dropped,
// and everything else is marked and propagated so the delivery channel can
// redeliver the whole notification.
package event
