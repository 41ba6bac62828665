// Package validation implements the side-effect-free tolerance validators
// used to match a customer's claim against the store's expected transaction.
//
// Every validator returns a result value and never an error: malformed input
// is reported as models.StatusInvalidFormat. Each validator also exposes a
// tolerance-window query for UI hinting and a batch form.
package validation
