// Package harness runs pipeline scenarios against a real pipeline and
// compares their traces with golden files.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: gate_scope_isolation
//	description: "Approving pains for one segment opens pains-ranking there only"
//	project: p1
//	items: 3
//	steps:
//	  - op: generate
//	    stage: segments
//	  - op: approve
//	    stage: segments
//	  - op: can_enter
//	    stage: pains-ranking
//	    segment: 2
//	    expect: { outcome: blocked, blocking: pains }
//	assertions:
//	  - type: trace_count
//	    op: generate
//	    outcome: ok
//	    count: 6
//	  - type: final_state
//	    table: approved
//	    stage: pains
//	    segment: 1
//	    expect: { count: 3 }
//
// Segments and pains are referenced by 1-based position: segment N is the
// Nth approved record of the segment source stage and pain N is the Nth top
// record of the segment's ranking. Draft rows are referenced by 1-based
// position in the current draft listing.
//
// # Operations
//
//   - generate, approve, revoke: the pipeline operations of the same name;
//     approve without rows approves every current draft
//   - top: flag rows as top (or clear with top: false)
//   - patch, delete: edit or remove draft rows
//   - regenerate: regenerate one field of one row
//   - render: list drafts (or approved records) in a display language
//   - can_enter: evaluate the gate
//
// # Assertion Types
//
//   - trace_contains: a step with the given op, stage and outcome ran
//   - trace_order: "op:stage" entries appear in order
//   - trace_count: steps matching op (and optionally stage and outcome)
//     ran exactly N times
//   - final_state: the drafts or approved set of a stage at a scope
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory store with sequential row ids
// (row-1, row-2, ...), a deterministic clock and the local content
// provider, so identical scenarios produce identical traces.
package harness
