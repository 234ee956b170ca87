package mysql

const insertCalculationSQL = `
INSERT INTO calculations
  (id, version, hotel_name, stars, approval_status, approval_reasons, decided_by, evaluated_at, input, derived, created_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Optimistic concurrency: the WHERE version guard makes a write based on
// a stale read affect zero rows.
const updateCalculationSQL = `
UPDATE calculations SET
  version          = ?,
  hotel_name       = ?,
  stars            = ?,
  approval_status  = ?,
  approval_reasons = ?,
  decided_by       = ?,
  evaluated_at     = ?,
  input            = ?,
  derived          = ?,
  updated_at       = ?
WHERE id = ? AND version = ?
`

const getCalculationSQL = `
SELECT
  id, version, approval_status, approval_reasons, decided_by, evaluated_at, input, derived, created_at, updated_at
FROM calculations
WHERE id = ?
`

const existsCalculationSQL = `SELECT 1 FROM calculations WHERE id = ?`

const listIDsSQL = `SELECT id FROM calculations ORDER BY created_at, id`

const insertOverrideSQL = `
INSERT INTO override_ledger
  (id, calculation_id, field_name, previous_value, new_value, justification, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
`

const listOverridesSQL = `
SELECT id, calculation_id, field_name, previous_value, new_value, justification, created_at
FROM override_ledger
WHERE calculation_id = ?
ORDER BY created_at, id
`

const insertTransitionSQL = `
INSERT INTO approval_events (calculation_id, from_status, to_status, actor)
VALUES (?, ?, ?, ?)
`
