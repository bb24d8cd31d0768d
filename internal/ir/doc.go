// Package ir provides the foundational types shared by every pipeline package.
//
// This package holds data definitions only. All other internal packages
// import ir; ir imports nothing internal, which keeps it the bottom layer
// with no circular dependencies.
//
// Contents:
//   - IRValue: a sealed union (null, string, int, bool, array, object) used
//     for every stage payload. Floats are forbidden so that canonical
//     serialization, and therefore every fingerprint, is deterministic.
//   - MarshalCanonical: RFC 8785 canonical JSON, the only serialization used
//     for fingerprints and for payload storage.
//   - Scope, Shape, DraftRow, ApprovedRecord: the pipeline data model.
//   - Error: the error taxonomy (NOT_FOUND, VALIDATION, UPSTREAM_UNMET,
//     EXTERNAL_SERVICE, TRANSIENT_STORE, CONFLICT).
//
// All JSON tags use snake_case.
package ir
