// Package models contains GORM-specific persistence models that map to database tables.
// Domain entities stay free of GORM tags; each model carries its table mapping
// and converts to and from its domain type with ToDomain / FromDomain.
//
// Structure:
//   - base.go: BaseModel and the AutoMigrate list
//   - ledger.go: ledger entries and the single chain-head row
//   - inventory.go: blood units and blood components
//   - request.go: blood requests, component assignments, transfusion records
//   - donation.go: donation requests and the donor directory
//
// The SQL migrations under migrations/ are the production schema; the tags here
// mirror them closely enough for AutoMigrate in tests and sqlite deployments.
package models
