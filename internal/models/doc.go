// Package models defines the core domain entities for Ikimina.
//
// # Entities
//
//   - Group: a rotating-savings group, created pending and activated by a
//     site administrator
//   - Membership: a user's join request to a group, decided by the group
//     leader
//   - Contribution: a member's periodic payment into the group pot
//   - Loan: a member's borrow request against the pot
//   - PaymentRequest: a disbursement/repayment record, completed with a
//     receipt reference
//   - Event: an ephemeral notification emitted after a committed status
//     change
//
// # Design Principles
//
//  1. **Immutable by replacement**: entities are never mutated in place; a
//     status change produces a new snapshot with Version incremented. The
//     workflow engine is the only code that produces new snapshots.
//  2. **Status strings**: lifecycle states are typed string constants, kept
//     in the database as-is for easy querying.
//  3. **Avoid circular references**: entities reference each other by ID
//     string, never by pointer.
//  4. **Money is decimal**: amounts use shopspring/decimal, serialized as
//     strings; float64 is never used for money.
package models
