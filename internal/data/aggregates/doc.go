// Package aggregates implements the domain aggregate contracts on top of the table repos.
//
// Each write method owns its transaction: repos receive the dbctx.Context carrying the
// open transaction, and every failure leaves through MapError as a *domainagg.Error.
package aggregates
