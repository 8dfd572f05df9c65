// Package billing provides the domain model for metered workflow billing.
//
// A BillingPolicy binds one workflow to a metering rule: a unit price, a
// metering unit (per character, per call or per minute) and a batch size.
// The Cost function turns measured usage into a point cost, quantized to
// six decimal places. Every balance adjustment, whether deduction or
// recharge, is recorded as an immutable LedgerEntry.
//
// The package holds no storage concerns; repositories are defined as
// interfaces here and implemented under infrastructure/persistence.
package billing
